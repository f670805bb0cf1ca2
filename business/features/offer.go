package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"offerRank/domain"
	"offerRank/pkg/logger"
)

// BuildOfferFeatures computes one row per offer active on refDate and
// transactionally replaces the offer_features rows for that date. Expired
// offers never get a row, so they cannot reach any later candidate pool.
func (s *Service) BuildOfferFeatures(ctx context.Context, refDate time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	offers, err := s.historyRepo.OffersActiveOn(ctx, refDate)
	if err != nil {
		return 0, fmt.Errorf("load active offers: %w", err)
	}
	if len(offers) == 0 {
		logger.Warn("no active offers", "reference_date", refDate.Format("2006-01-02"))
		if err := s.featureRepo.ReplaceOfferFeatures(ctx, refDate, nil); err != nil {
			return 0, fmt.Errorf("replace offer features: %w", err)
		}
		return 0, nil
	}

	productIDs := make([]uint64, 0, len(offers))
	for _, o := range offers {
		productIDs = append(productIDs, o.ProductID)
	}
	products, err := s.historyRepo.ProductsByID(ctx, productIDs)
	if err != nil {
		return 0, fmt.Errorf("load products: %w", err)
	}

	// History strictly before the reference date keeps train/serve views
	// consistent within a run.
	impressions, err := s.historyRepo.ImpressionCounts(ctx, refDate)
	if err != nil {
		return 0, fmt.Errorf("load impression counts: %w", err)
	}
	redemptions, err := s.historyRepo.RedemptionCounts(ctx, refDate)
	if err != nil {
		return 0, fmt.Errorf("load redemption counts: %w", err)
	}

	globalRate := globalRedemptionRate(impressions, redemptions)

	rows := make([]domain.OfferFeatures, 0, len(offers))
	for _, offer := range offers {
		product := products[offer.ProductID]
		rows = append(rows, computeOfferRow(offer, product, refDate,
			impressions[offer.ID], redemptions[offer.ID], globalRate))
	}

	if err := s.featureRepo.ReplaceOfferFeatures(ctx, refDate, rows); err != nil {
		return 0, fmt.Errorf("replace offer features: %w", err)
	}

	logger.Info("offer_features built",
		"reference_date", refDate.Format("2006-01-02"),
		"rows", len(rows),
	)
	return len(rows), nil
}

func computeOfferRow(
	offer domain.Offer,
	product domain.Product,
	refDate time.Time,
	imps, reds int64,
	globalRate float64,
) domain.OfferFeatures {

	depth := DiscountDepth(offer, product)

	// Cold-start fallback: with zero impressions the rate is the global
	// average, not zero, so new offers are not buried.
	rate := globalRate
	if imps > 0 {
		rate = float64(reds) / float64(imps)
	}

	daysLeft := math.Max(0, offer.EndDate.Sub(refDate).Hours()/24)

	return domain.OfferFeatures{
		OfferID:                  offer.ID,
		ReferenceDate:            refDate,
		DiscountDepth:            depth,
		MarginImpact:             product.BasePrice * product.Margin * depth,
		DaysUntilExpiry:          daysLeft,
		HistoricalRedemptionRate: rate,
		TotalImpressions:         imps,
		TotalRedemptions:         reds,
		Category:                 product.Category,
		Brand:                    product.Brand,
		BasePrice:                product.BasePrice,
		IsOwnBrand:               product.IsOwnBrand,
	}
}

// DiscountDepth normalizes every offer mechanic to 0..1. Percentage and
// fixed-amount offers have a direct price meaning; the non-price mechanics
// use fixed policy proxies.
func DiscountDepth(offer domain.Offer, product domain.Product) float64 {
	switch offer.DiscountType {
	case domain.DiscountPercentage:
		return clamp01(offer.DiscountValue / 100.0)
	case domain.DiscountFixed:
		return clamp01(offer.DiscountValue / math.Max(product.BasePrice, 0.01))
	case domain.DiscountBOGO:
		return 0.50
	case domain.DiscountVolume:
		return 0.35
	case domain.DiscountBundle:
		return 0.30
	case domain.DiscountFreeGift:
		return 0.25
	default:
		return 0
	}
}

func globalRedemptionRate(impressions, redemptions map[uint64]int64) float64 {
	var imps, reds int64
	for _, n := range impressions {
		imps += n
	}
	for _, n := range redemptions {
		reds += n
	}
	if imps == 0 {
		return 0
	}
	return float64(reds) / float64(imps)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
