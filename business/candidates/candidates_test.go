package candidates

import (
	"context"
	"testing"
	"time"

	"offerRank/domain"
	"offerRank/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var runDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

type fakeHistory struct {
	customers []domain.Customer
	offers    []domain.Offer
	products  map[uint64]domain.Product
	lines     []domain.OrderLineFact
	stats     []domain.SegmentOfferStat
}

func (f *fakeHistory) Customers(ctx context.Context) ([]domain.Customer, error) {
	return f.customers, nil
}

func (f *fakeHistory) OffersActiveOn(ctx context.Context, date time.Time) ([]domain.Offer, error) {
	var out []domain.Offer
	for _, o := range f.offers {
		if o.ActiveOn(date) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeHistory) ProductsByID(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error) {
	out := make(map[uint64]domain.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeHistory) LineFacts(ctx context.Context, from, until time.Time) ([]domain.OrderLineFact, error) {
	return f.lines, nil
}

func (f *fakeHistory) SegmentOfferStats(ctx context.Context, before time.Time) ([]domain.SegmentOfferStat, error) {
	return f.stats, nil
}

type fakeFeatures struct {
	rows []domain.CustomerFeatures
}

func (f *fakeFeatures) CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error) {
	return f.rows, nil
}

type fakePool struct {
	entries  []domain.CandidatePoolEntry
	replaces int
}

func (f *fakePool) ReplacePool(ctx context.Context, runDate time.Time, entries []domain.CandidatePoolEntry) error {
	f.entries = entries
	f.replaces++
	return nil
}

func activeOffer(id, productID uint64) domain.Offer {
	return domain.Offer{
		ID:           id,
		ProductID:    productID,
		DiscountType: domain.DiscountPercentage,
		StartDate:    runDate.AddDate(0, 0, -10),
		EndDate:      runDate.AddDate(0, 0, 10),
	}
}

func custFeatures(customerID uint64, segment string, topCats string) domain.CustomerFeatures {
	return domain.CustomerFeatures{
		CustomerID:    customerID,
		ReferenceDate: runDate,
		Segment:       segment,
		TopCategories: datatypes.JSON(topCats),
	}
}

func testConfig() config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.Workers = 2
	return cfg
}

func TestGenerate_NoActiveOffers(t *testing.T) {
	history := &fakeHistory{
		customers: []domain.Customer{{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze}},
	}
	pool := &fakePool{}
	svc := NewService(history, &fakeFeatures{}, pool, testConfig())

	n, err := svc.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, pool.replaces)
	assert.Empty(t, pool.entries)
}

func TestGenerate_CategoryAffinityAndEligibility(t *testing.T) {
	offers := []domain.Offer{
		activeOffer(1, 10),
		activeOffer(2, 11),
		activeOffer(3, 12),
	}
	// offer 3 is scoped to premium only
	offers[2].SegmentScope = "premium"

	history := &fakeHistory{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
		},
		offers: offers,
		products: map[uint64]domain.Product{
			10: {ID: 10, Category: "dairy"},
			11: {ID: 11, Category: "beverages"},
			12: {ID: 12, Category: "dairy"},
		},
	}
	features := &fakeFeatures{rows: []domain.CustomerFeatures{
		custFeatures(1, domain.SegmentBudget, `["dairy"]`),
	}}
	pool := &fakePool{}
	svc := NewService(history, features, pool, testConfig())

	n, err := svc.Generate(context.Background(), runDate)
	require.NoError(t, err)
	require.Equal(t, n, len(pool.entries))

	byOffer := make(map[uint64]domain.Strategy)
	for _, e := range pool.entries {
		byOffer[e.OfferID] = e.Strategy
	}
	// dairy offer 1 retrieved by category affinity; scoped offer 3 excluded
	assert.Equal(t, domain.StrategyCategoryAffinity, byOffer[1])
	assert.NotContains(t, byOffer, uint64(3))
	// offer 2 only reachable through the high-margin catch-all
	assert.Equal(t, domain.StrategyHighMargin, byOffer[2])
}

func TestGenerate_FirstStrategyKeepsTheTag(t *testing.T) {
	history := &fakeHistory{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
		},
		offers: []domain.Offer{activeOffer(1, 10)},
		products: map[uint64]domain.Product{
			10: {ID: 10, Category: "dairy", BasePrice: 100, Margin: 0.5},
		},
		// strong segment popularity for the same offer
		stats: []domain.SegmentOfferStat{
			{Segment: domain.SegmentBudget, OfferID: 1, Impressions: 100, Redemptions: 60},
		},
	}
	features := &fakeFeatures{rows: []domain.CustomerFeatures{
		custFeatures(1, domain.SegmentBudget, `["dairy"]`),
	}}
	pool := &fakePool{}
	svc := NewService(history, features, pool, testConfig())

	_, err := svc.Generate(context.Background(), runDate)
	require.NoError(t, err)
	require.Len(t, pool.entries, 1)
	assert.Equal(t, domain.StrategyCategoryAffinity, pool.entries[0].Strategy)
}

func TestGenerate_PoolSizeCap(t *testing.T) {
	cfg := testConfig()
	cfg.CandidatePoolSize = 5

	var offers []domain.Offer
	products := make(map[uint64]domain.Product)
	for i := uint64(1); i <= 20; i++ {
		offers = append(offers, activeOffer(i, 100+i))
		products[100+i] = domain.Product{ID: 100 + i, Category: "dairy", BasePrice: float64(i), Margin: 0.2}
	}
	history := &fakeHistory{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
		},
		offers:   offers,
		products: products,
	}
	features := &fakeFeatures{rows: []domain.CustomerFeatures{
		custFeatures(1, domain.SegmentBudget, `["dairy"]`),
	}}
	pool := &fakePool{}
	svc := NewService(history, features, pool, cfg)

	n, err := svc.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	seen := make(map[uint64]struct{})
	for _, e := range pool.entries {
		_, dup := seen[e.OfferID]
		assert.False(t, dup, "offer %d appears twice", e.OfferID)
		seen[e.OfferID] = struct{}{}
	}
}

func TestGenerate_RedemptionCap(t *testing.T) {
	capped := activeOffer(1, 10)
	capped.MaxRedemptions = 5

	history := &fakeHistory{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
		},
		offers: []domain.Offer{capped, activeOffer(2, 11)},
		products: map[uint64]domain.Product{
			10: {ID: 10, Category: "dairy"},
			11: {ID: 11, Category: "dairy"},
		},
		stats: []domain.SegmentOfferStat{
			{Segment: domain.SegmentBudget, OfferID: 1, Impressions: 50, Redemptions: 5},
		},
	}
	features := &fakeFeatures{rows: []domain.CustomerFeatures{
		custFeatures(1, domain.SegmentBudget, `["dairy"]`),
	}}
	pool := &fakePool{}
	svc := NewService(history, features, pool, testConfig())

	_, err := svc.Generate(context.Background(), runDate)
	require.NoError(t, err)

	for _, e := range pool.entries {
		assert.NotEqual(t, uint64(1), e.OfferID, "fully redeemed offer must not be proposed")
	}
	require.Len(t, pool.entries, 1)
	assert.Equal(t, uint64(2), pool.entries[0].OfferID)
}

func TestGenerate_Deterministic(t *testing.T) {
	var offers []domain.Offer
	products := make(map[uint64]domain.Product)
	for i := uint64(1); i <= 30; i++ {
		o := activeOffer(i, 100+i)
		offers = append(offers, o)
		cat := "dairy"
		if i%2 == 0 {
			cat = "beverages"
		}
		products[100+i] = domain.Product{ID: 100 + i, Category: cat, BasePrice: float64(31 - i), Margin: 0.3, IsOwnBrand: i%3 == 0}
	}
	history := &fakeHistory{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
			{ID: 2, Segment: domain.SegmentFamily, LoyaltyTier: domain.TierGold},
		},
		offers:   offers,
		products: products,
		lines: []domain.OrderLineFact{
			{OrderID: 1, CustomerID: 1, ProductID: 101, OrderedAt: runDate.AddDate(0, 0, -3),
				Quantity: 2, UnitPrice: 10, PricingTier: 1, Category: "dairy"},
		},
		stats: []domain.SegmentOfferStat{
			{Segment: domain.SegmentBudget, OfferID: 5, Impressions: 40, Redemptions: 12},
			{Segment: domain.SegmentFamily, OfferID: 6, Impressions: 40, Redemptions: 20},
		},
	}
	features := &fakeFeatures{rows: []domain.CustomerFeatures{
		custFeatures(1, domain.SegmentBudget, `["dairy"]`),
		custFeatures(2, domain.SegmentFamily, `["beverages"]`),
	}}

	run := func() []domain.CandidatePoolEntry {
		pool := &fakePool{}
		svc := NewService(history, features, pool, testConfig())
		_, err := svc.Generate(context.Background(), runDate)
		require.NoError(t, err)
		return pool.entries
	}

	first := run()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}
}
