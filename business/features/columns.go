package features

import (
	"offerRank/domain"
)

// Columns is the canonical feature order for the ranking model. The trained
// artifact records the order it was fitted with, and scoring assembles
// vectors from the artifact's copy, so train and serve can never disagree.
var Columns = []string{
	"recency_days",
	"frequency",
	"monetary",
	"promo_affinity",
	"avg_basket_size",
	"avg_basket_qty",
	"avg_order_value",
	"avg_discount_depth",
	"category_entropy",
	"tier2_purchase_ratio",
	"tier3_purchase_ratio",
	"avg_tier_savings_pct",
	"discount_depth",
	"margin_impact",
	"days_until_expiry",
	"historical_redemption_rate",
	"is_own_brand",
	"bought_product_before",
	"days_since_last_cat_purchase",
	"category_affinity_score",
	"discount_depth_vs_usual",
	"scope_match",
}

// Vector assembles one model input row in the given column order. Unknown
// columns become 0 rather than failing, mirroring the fill-with-zero
// handling for missing feature rows.
func Vector(columns []string, cust domain.CustomerFeatures, off domain.OfferFeatures, inter domain.InteractionFeatures) []float64 {
	x := make([]float64, len(columns))
	for i, name := range columns {
		x[i] = featureValue(name, cust, off, inter)
	}
	return x
}

func featureValue(name string, cust domain.CustomerFeatures, off domain.OfferFeatures, inter domain.InteractionFeatures) float64 {
	switch name {
	case "recency_days":
		return cust.RecencyDays
	case "frequency":
		return cust.Frequency
	case "monetary":
		return cust.Monetary
	case "promo_affinity":
		return cust.PromoAffinity
	case "avg_basket_size":
		return cust.AvgBasketSize
	case "avg_basket_qty":
		return cust.AvgBasketQty
	case "avg_order_value":
		return cust.AvgOrderValue
	case "avg_discount_depth":
		return cust.AvgDiscountDepth
	case "category_entropy":
		return cust.CategoryEntropy
	case "tier2_purchase_ratio":
		return cust.Tier2PurchaseRatio
	case "tier3_purchase_ratio":
		return cust.Tier3PurchaseRatio
	case "avg_tier_savings_pct":
		return cust.AvgTierSavingsPct
	case "discount_depth":
		return off.DiscountDepth
	case "margin_impact":
		return off.MarginImpact
	case "days_until_expiry":
		return off.DaysUntilExpiry
	case "historical_redemption_rate":
		return off.HistoricalRedemptionRate
	case "is_own_brand":
		if off.IsOwnBrand {
			return 1
		}
		return 0
	case "bought_product_before":
		return inter.BoughtProductBefore
	case "days_since_last_cat_purchase":
		return inter.DaysSinceLastCatPurchase
	case "category_affinity_score":
		return inter.CategoryAffinityScore
	case "discount_depth_vs_usual":
		return inter.DiscountDepthVsUsual
	case "scope_match":
		return inter.ScopeMatch
	default:
		return 0
	}
}

// DriftColumns are the customer features monitored for distribution shift.
var DriftColumns = []string{
	"recency_days",
	"frequency",
	"monetary",
	"promo_affinity",
	"avg_basket_size",
	"avg_discount_depth",
	"tier2_purchase_ratio",
	"tier3_purchase_ratio",
}

// CustomerValue extracts one monitored column from a customer feature row.
func CustomerValue(name string, cust domain.CustomerFeatures) (float64, bool) {
	switch name {
	case "recency_days":
		return cust.RecencyDays, true
	case "frequency":
		return cust.Frequency, true
	case "monetary":
		return cust.Monetary, true
	case "promo_affinity":
		return cust.PromoAffinity, true
	case "avg_basket_size":
		return cust.AvgBasketSize, true
	case "avg_basket_qty":
		return cust.AvgBasketQty, true
	case "avg_order_value":
		return cust.AvgOrderValue, true
	case "avg_discount_depth":
		return cust.AvgDiscountDepth, true
	case "category_entropy":
		return cust.CategoryEntropy, true
	case "tier2_purchase_ratio":
		return cust.Tier2PurchaseRatio, true
	case "tier3_purchase_ratio":
		return cust.Tier3PurchaseRatio, true
	case "avg_tier_savings_pct":
		return cust.AvgTierSavingsPct, true
	default:
		return 0, false
	}
}
