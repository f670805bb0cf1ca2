package features

import (
	"context"
	"fmt"
	"time"

	"offerRank/domain"
	"offerRank/pkg/logger"
)

// Pair identifies one (customer, offer) candidate.
type Pair struct {
	CustomerID uint64
	OfferID    uint64
}

// InteractionFeatures computes pair features for exactly the supplied pairs —
// never the full customer × offer cross-product. History up to refDate is
// used, not just the lookback window, since "bought before" is an all-time
// question.
func (s *Service) InteractionFeatures(ctx context.Context, pairs []Pair, refDate time.Time) (map[Pair]domain.InteractionFeatures, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	out := make(map[Pair]domain.InteractionFeatures, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	offerIDs := make([]uint64, 0, len(pairs))
	seenOffers := make(map[uint64]struct{})
	for _, p := range pairs {
		if _, ok := seenOffers[p.OfferID]; ok {
			continue
		}
		seenOffers[p.OfferID] = struct{}{}
		offerIDs = append(offerIDs, p.OfferID)
	}

	offers, err := s.historyRepo.OffersByID(ctx, offerIDs)
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}

	productIDs := make([]uint64, 0, len(offers))
	for _, o := range offers {
		productIDs = append(productIDs, o.ProductID)
	}
	products, err := s.historyRepo.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	lines, err := s.historyRepo.LineFacts(ctx, time.Time{}, refDate)
	if err != nil {
		return nil, fmt.Errorf("load line facts: %w", err)
	}
	idx := buildHistoryIndex(lines)

	custFeats, err := s.featureRepo.CustomerFeaturesAt(ctx, refDate)
	if err != nil {
		return nil, fmt.Errorf("load customer features: %w", err)
	}
	featByCustomer := make(map[uint64]domain.CustomerFeatures, len(custFeats))
	for _, f := range custFeats {
		featByCustomer[f.CustomerID] = f
	}

	for _, p := range pairs {
		offer, ok := offers[p.OfferID]
		if !ok {
			// Unknown offer: neutral sentinels, consistent with cold-start
			// handling elsewhere.
			out[p] = domain.InteractionFeatures{
				CustomerID:               p.CustomerID,
				OfferID:                  p.OfferID,
				DaysSinceLastCatPurchase: domain.CatRecencySentinel,
			}
			continue
		}
		product := products[offer.ProductID]
		feat := featByCustomer[p.CustomerID]
		out[p] = computePairRow(p, offer, product, idx, feat, refDate)
	}

	logger.Debug("interaction features computed", "pairs", len(out))
	return out, nil
}

// historyIndex holds the per-customer lookups a pair row needs.
type historyIndex struct {
	products   map[uint64]map[uint64]struct{}  // customer -> purchased products
	catLastBuy map[uint64]map[string]time.Time // customer -> category -> last purchase
	catSpend   map[uint64]map[string]float64   // customer -> category -> spend
	totalSpend map[uint64]float64
}

func buildHistoryIndex(lines []domain.OrderLineFact) historyIndex {
	idx := historyIndex{
		products:   make(map[uint64]map[uint64]struct{}),
		catLastBuy: make(map[uint64]map[string]time.Time),
		catSpend:   make(map[uint64]map[string]float64),
		totalSpend: make(map[uint64]float64),
	}
	for _, l := range lines {
		cid := l.CustomerID

		prods, ok := idx.products[cid]
		if !ok {
			prods = make(map[uint64]struct{})
			idx.products[cid] = prods
		}
		prods[l.ProductID] = struct{}{}

		last, ok := idx.catLastBuy[cid]
		if !ok {
			last = make(map[string]time.Time)
			idx.catLastBuy[cid] = last
		}
		if l.OrderedAt.After(last[l.Category]) {
			last[l.Category] = l.OrderedAt
		}

		spend, ok := idx.catSpend[cid]
		if !ok {
			spend = make(map[string]float64)
			idx.catSpend[cid] = spend
		}
		spend[l.Category] += l.Spend()
		idx.totalSpend[cid] += l.Spend()
	}
	return idx
}

func computePairRow(
	p Pair,
	offer domain.Offer,
	product domain.Product,
	idx historyIndex,
	feat domain.CustomerFeatures,
	refDate time.Time,
) domain.InteractionFeatures {

	row := domain.InteractionFeatures{
		CustomerID:               p.CustomerID,
		OfferID:                  p.OfferID,
		DaysSinceLastCatPurchase: domain.CatRecencySentinel,
	}

	if _, ok := idx.products[p.CustomerID][offer.ProductID]; ok {
		row.BoughtProductBefore = 1
	}

	if last, ok := idx.catLastBuy[p.CustomerID][product.Category]; ok {
		row.DaysSinceLastCatPurchase = refDate.Sub(last).Hours() / 24
		if row.DaysSinceLastCatPurchase < 0 {
			row.DaysSinceLastCatPurchase = 0
		}
	}

	if total := idx.totalSpend[p.CustomerID]; total > 0 {
		row.CategoryAffinityScore = idx.catSpend[p.CustomerID][product.Category] / total
	}

	depth := DiscountDepth(offer, product)
	row.DiscountDepthVsUsual = depth - feat.AvgDiscountDepth

	if offer.SegmentAllows(feat.Segment) && offer.TierAllows(feat.LoyaltyTier) {
		row.ScopeMatch = 1
	}

	return row
}
