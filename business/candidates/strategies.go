package candidates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"offerRank/business/features"
	"offerRank/domain"
)

// retrievalIndex holds every prebuilt lookup the strategies run against.
// Built once per run, read-only afterwards, so customer fan-out can share it.
type retrievalIndex struct {
	offersByID     map[uint64]domain.Offer
	productByOffer map[uint64]domain.Product
	redemptions    map[uint64]int64 // all-time, for redemption caps

	catOffers     map[string][]uint64 // category -> offer ids (ascending)
	productOffers map[uint64][]uint64 // product -> offer ids (ascending)
	highMarginIDs []uint64            // by effective margin desc, id asc
	segPopular    map[string][]uint64 // segment -> offers by redemption rate desc
	ownBrandCat   map[string][]uint64 // category -> own-brand offer ids
	adjacency     map[string][]string // segment+category co-occurrence, see below

	profiles map[uint64]customerProfile
}

// customerProfile is the per-customer slice of the index.
type customerProfile struct {
	topCategories []string
	pastProducts  map[uint64]struct{}
	// products bought only at tier 1, with the average quantity per line
	tier1AvgQty map[uint64]float64
	// categories where the customer buys non-own-brand products
	brandedCategories map[string]struct{}
}

func (idx *retrievalIndex) profile(customerID uint64) customerProfile {
	return idx.profiles[customerID]
}

func (s *Service) buildIndex(ctx context.Context, runDate time.Time, offers []domain.Offer) (*retrievalIndex, error) {
	idx := &retrievalIndex{
		offersByID:     make(map[uint64]domain.Offer, len(offers)),
		productByOffer: make(map[uint64]domain.Product, len(offers)),
		redemptions:    make(map[uint64]int64),
		catOffers:     make(map[string][]uint64),
		productOffers: make(map[uint64][]uint64),
		segPopular:    make(map[string][]uint64),
		ownBrandCat:   make(map[string][]uint64),
		adjacency:     make(map[string][]string),
		profiles:      make(map[uint64]customerProfile),
	}

	productIDs := make([]uint64, 0, len(offers))
	for _, o := range offers {
		idx.offersByID[o.ID] = o
		productIDs = append(productIDs, o.ProductID)
	}
	products, err := s.historyRepo.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load offer products: %w", err)
	}

	type marginOffer struct {
		id     uint64
		margin float64
	}
	var margins []marginOffer

	for _, o := range offers {
		p := products[o.ProductID]
		idx.productByOffer[o.ID] = p
		idx.catOffers[p.Category] = append(idx.catOffers[p.Category], o.ID)
		idx.productOffers[o.ProductID] = append(idx.productOffers[o.ProductID], o.ID)
		if p.IsOwnBrand {
			idx.ownBrandCat[p.Category] = append(idx.ownBrandCat[p.Category], o.ID)
		}
		margins = append(margins, marginOffer{id: o.ID, margin: p.BasePrice * p.Margin})
	}
	for cat := range idx.catOffers {
		sortOfferIDs(idx.catOffers[cat])
	}
	for pid := range idx.productOffers {
		sortOfferIDs(idx.productOffers[pid])
	}
	for cat := range idx.ownBrandCat {
		sortOfferIDs(idx.ownBrandCat[cat])
	}

	sort.Slice(margins, func(i, j int) bool {
		if margins[i].margin == margins[j].margin {
			return margins[i].id < margins[j].id
		}
		return margins[i].margin > margins[j].margin
	})
	for _, m := range margins {
		idx.highMarginIDs = append(idx.highMarginIDs, m.id)
	}

	if err := s.indexSegmentStats(ctx, runDate, idx); err != nil {
		return nil, err
	}
	if err := s.indexCustomerHistory(ctx, runDate, idx); err != nil {
		return nil, err
	}

	return idx, nil
}

// indexSegmentStats ranks offers per segment by historical redemption rate
// and accumulates all-time redemption totals for cap enforcement.
func (s *Service) indexSegmentStats(ctx context.Context, runDate time.Time, idx *retrievalIndex) error {
	stats, err := s.historyRepo.SegmentOfferStats(ctx, runDate)
	if err != nil {
		return fmt.Errorf("load segment stats: %w", err)
	}

	type rated struct {
		id   uint64
		rate float64
	}
	bySegment := make(map[string][]rated)

	for _, st := range stats {
		idx.redemptions[st.OfferID] += st.Redemptions
		if _, active := idx.offersByID[st.OfferID]; !active {
			continue
		}
		if st.Impressions < minSegmentImpressions {
			continue
		}
		bySegment[st.Segment] = append(bySegment[st.Segment], rated{
			id:   st.OfferID,
			rate: float64(st.Redemptions) / float64(st.Impressions),
		})
	}

	for seg, list := range bySegment {
		sort.Slice(list, func(i, j int) bool {
			if list[i].rate == list[j].rate {
				return list[i].id < list[j].id
			}
			return list[i].rate > list[j].rate
		})
		ids := make([]uint64, 0, len(list))
		for _, r := range list {
			ids = append(ids, r.id)
		}
		idx.segPopular[seg] = ids
	}
	return nil
}

// indexCustomerHistory derives the per-customer profiles and the category
// adjacency graph from lookback orders.
func (s *Service) indexCustomerHistory(ctx context.Context, runDate time.Time, idx *retrievalIndex) error {
	from := runDate.AddDate(0, 0, -s.cfg.LookbackDays)
	lines, err := s.historyRepo.LineFacts(ctx, from, runDate)
	if err != nil {
		return fmt.Errorf("load line facts: %w", err)
	}

	custFeats, err := s.featureRepo.CustomerFeaturesAt(ctx, runDate)
	if err != nil {
		return fmt.Errorf("load customer features: %w", err)
	}

	type tierAgg struct {
		qtySum   int
		lines    int
		sawTier2 bool
	}
	pastProducts := make(map[uint64]map[uint64]struct{})
	tier1 := make(map[uint64]map[uint64]*tierAgg)
	branded := make(map[uint64]map[string]struct{})

	// category co-occurrence within an order, per segment
	segments := make(map[uint64]string)
	orderCats := make(map[uint64]map[string]struct{})
	orderSegment := make(map[uint64]string)
	for _, f := range custFeats {
		segments[f.CustomerID] = f.Segment
	}

	for _, l := range lines {
		prods, ok := pastProducts[l.CustomerID]
		if !ok {
			prods = make(map[uint64]struct{})
			pastProducts[l.CustomerID] = prods
		}
		prods[l.ProductID] = struct{}{}

		ta, ok := tier1[l.CustomerID]
		if !ok {
			ta = make(map[uint64]*tierAgg)
			tier1[l.CustomerID] = ta
		}
		agg, ok := ta[l.ProductID]
		if !ok {
			agg = &tierAgg{}
			ta[l.ProductID] = agg
		}
		agg.qtySum += l.Quantity
		agg.lines++
		if l.PricingTier > 1 {
			agg.sawTier2 = true
		}

		if !l.IsOwnBrand {
			cats, ok := branded[l.CustomerID]
			if !ok {
				cats = make(map[string]struct{})
				branded[l.CustomerID] = cats
			}
			cats[l.Category] = struct{}{}
		}

		cats, ok := orderCats[l.OrderID]
		if !ok {
			cats = make(map[string]struct{})
			orderCats[l.OrderID] = cats
			orderSegment[l.OrderID] = segments[l.CustomerID]
		}
		cats[l.Category] = struct{}{}
	}

	idx.adjacency = buildAdjacency(orderCats, orderSegment)

	for _, f := range custFeats {
		p := customerProfile{
			topCategories:     features.TopCategories(f),
			pastProducts:      pastProducts[f.CustomerID],
			tier1AvgQty:       make(map[uint64]float64),
			brandedCategories: branded[f.CustomerID],
		}
		for pid, agg := range tier1[f.CustomerID] {
			if agg.sawTier2 || agg.lines == 0 {
				continue
			}
			p.tier1AvgQty[pid] = float64(agg.qtySum) / float64(agg.lines)
		}
		idx.profiles[f.CustomerID] = p
	}
	return nil
}

// buildAdjacency maps segment|category -> categories that co-occur with it
// in the same orders, most frequent first.
func buildAdjacency(orderCats map[uint64]map[string]struct{}, orderSegment map[uint64]string) map[string][]string {
	counts := make(map[string]map[string]int)

	for orderID, cats := range orderCats {
		seg := orderSegment[orderID]
		for a := range cats {
			for b := range cats {
				if a == b {
					continue
				}
				key := seg + "|" + a
				if counts[key] == nil {
					counts[key] = make(map[string]int)
				}
				counts[key][b]++
			}
		}
	}

	adjacency := make(map[string][]string, len(counts))
	for key, neighbors := range counts {
		type catCount struct {
			cat string
			n   int
		}
		list := make([]catCount, 0, len(neighbors))
		for cat, n := range neighbors {
			list = append(list, catCount{cat: cat, n: n})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].n == list[j].n {
				return list[i].cat < list[j].cat
			}
			return list[i].n > list[j].n
		})
		ordered := make([]string, 0, len(list))
		for _, c := range list {
			ordered = append(ordered, c.cat)
		}
		adjacency[key] = ordered
	}
	return adjacency
}

// ---- Strategies ----
// Each strategy is a pure lookup against the index returning an ordered,
// bounded offer id list. Eligibility and dedup happen in the union step.

func (idx *retrievalIndex) categoryAffinity(p customerProfile, limit int) []uint64 {
	var out []uint64
	for _, cat := range p.topCategories {
		for _, id := range idx.catOffers[cat] {
			if len(out) >= limit {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

func (idx *retrievalIndex) segmentPopular(segment string, limit int) []uint64 {
	ids := idx.segPopular[segment]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (idx *retrievalIndex) repeatPurchase(p customerProfile, limit int) []uint64 {
	// iterate products in ascending id order for determinism
	pids := make([]uint64, 0, len(p.pastProducts))
	for pid := range p.pastProducts {
		pids = append(pids, pid)
	}
	sortOfferIDs(pids)

	var out []uint64
	for _, pid := range pids {
		for _, id := range idx.productOffers[pid] {
			if len(out) >= limit {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

// tierUpgrade proposes offers on products the customer buys at tier 1 when
// the tier-2 quantity threshold is within reach (at most twice the
// customer's average line quantity).
func (idx *retrievalIndex) tierUpgrade(p customerProfile, limit int) []uint64 {
	pids := make([]uint64, 0, len(p.tier1AvgQty))
	for pid := range p.tier1AvgQty {
		pids = append(pids, pid)
	}
	sortOfferIDs(pids)

	var out []uint64
	for _, pid := range pids {
		for _, id := range idx.productOffers[pid] {
			product := idx.productByOffer[id]
			if !product.HasTierPricing() {
				continue
			}
			if float64(product.Tier2Qty) > 2*p.tier1AvgQty[pid] {
				continue
			}
			if len(out) >= limit {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

func (idx *retrievalIndex) crossSell(p customerProfile, segment string, limit int) []uint64 {
	top := make(map[string]struct{}, len(p.topCategories))
	for _, cat := range p.topCategories {
		top[cat] = struct{}{}
	}

	var out []uint64
	seen := make(map[uint64]struct{})
	for _, cat := range p.topCategories {
		for _, adjacent := range idx.adjacency[segment+"|"+cat] {
			if _, isTop := top[adjacent]; isTop {
				continue
			}
			for _, id := range idx.catOffers[adjacent] {
				if len(out) >= limit {
					return out
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// ownBrandSwitch proposes own-brand offers in categories where the customer
// currently buys branded products.
func (idx *retrievalIndex) ownBrandSwitch(p customerProfile, limit int) []uint64 {
	cats := make([]string, 0, len(p.brandedCategories))
	for cat := range p.brandedCategories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var out []uint64
	for _, cat := range cats {
		for _, id := range idx.ownBrandCat[cat] {
			if len(out) >= limit {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

func (idx *retrievalIndex) highMargin(limit int) []uint64 {
	ids := idx.highMarginIDs
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (idx *retrievalIndex) redemptionCapReached(offer domain.Offer) bool {
	if offer.MaxRedemptions <= 0 {
		return false
	}
	return idx.redemptions[offer.ID] >= int64(offer.MaxRedemptions)
}
