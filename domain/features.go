package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Sentinel values for customers/offers with no history in the lookback
// window. The scorer must never see NULL or NaN.
const (
	RecencySentinel    = 999.0
	CatRecencySentinel = 999.0
)

// CustomerFeatures is rebuilt in full every run and keyed by
// (customer_id, reference_date). Prior rows are retained as a time series
// for drift comparison.
type CustomerFeatures struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	CustomerID    uint64    `gorm:"column:customer_id;not null;uniqueIndex:idx_cust_feats_ref"`
	ReferenceDate time.Time `gorm:"column:reference_date;not null;uniqueIndex:idx_cust_feats_ref;index"`

	RecencyDays      float64 `gorm:"column:recency_days"`
	Frequency        float64 `gorm:"column:frequency"`
	Monetary         float64 `gorm:"column:monetary"`
	PromoAffinity    float64 `gorm:"column:promo_affinity"`
	AvgBasketSize    float64 `gorm:"column:avg_basket_size"`
	AvgBasketQty     float64 `gorm:"column:avg_basket_qty"`
	AvgOrderValue    float64 `gorm:"column:avg_order_value"`
	AvgDiscountDepth float64 `gorm:"column:avg_discount_depth"`
	CategoryEntropy  float64 `gorm:"column:category_entropy"`

	Tier2PurchaseRatio float64 `gorm:"column:tier2_purchase_ratio"`
	Tier3PurchaseRatio float64 `gorm:"column:tier3_purchase_ratio"`
	AvgTierSavingsPct  float64 `gorm:"column:avg_tier_savings_pct"`

	// Categorical context, copied through for slicing and candidate
	// generation; not fed to the model as-is.
	Segment       string         `gorm:"column:segment"`
	LoyaltyTier   string         `gorm:"column:loyalty_tier"`
	TopCategories datatypes.JSON `gorm:"column:top_categories;type:jsonb"`
}

func (CustomerFeatures) TableName() string {
	return "customer_features"
}

// OfferFeatures is rebuilt per run for every offer active on the reference
// date.
type OfferFeatures struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	OfferID       uint64    `gorm:"column:offer_id;not null;uniqueIndex:idx_offer_feats_ref"`
	ReferenceDate time.Time `gorm:"column:reference_date;not null;uniqueIndex:idx_offer_feats_ref;index"`

	DiscountDepth            float64 `gorm:"column:discount_depth"`
	MarginImpact             float64 `gorm:"column:margin_impact"`
	DaysUntilExpiry          float64 `gorm:"column:days_until_expiry"`
	HistoricalRedemptionRate float64 `gorm:"column:historical_redemption_rate"`
	TotalImpressions         int64   `gorm:"column:total_impressions"`
	TotalRedemptions         int64   `gorm:"column:total_redemptions"`

	Category   string  `gorm:"column:category"`
	Brand      string  `gorm:"column:brand"`
	BasePrice  float64 `gorm:"column:base_price"`
	IsOwnBrand bool    `gorm:"column:is_own_brand"`
}

func (OfferFeatures) TableName() string {
	return "offer_features"
}

// InteractionFeatures is computed lazily for (customer, offer) pairs in the
// candidate pool. Never persisted, only joined into score vectors.
type InteractionFeatures struct {
	CustomerID uint64
	OfferID    uint64

	BoughtProductBefore      float64
	DaysSinceLastCatPurchase float64
	CategoryAffinityScore    float64
	DiscountDepthVsUsual     float64
	ScopeMatch               float64
}
