package features

import (
	"context"
	"math"
	"testing"
	"time"

	"offerRank/domain"
	"offerRank/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

// fakeHistoryRepo serves canned inputs for both builder paths.
type fakeHistoryRepo struct {
	customers   []domain.Customer
	offers      []domain.Offer
	products    map[uint64]domain.Product
	lines       []domain.OrderLineFact
	impressions map[uint64]int64
	redemptions map[uint64]int64
}

func (f *fakeHistoryRepo) Customers(ctx context.Context) ([]domain.Customer, error) {
	return f.customers, nil
}

func (f *fakeHistoryRepo) OffersActiveOn(ctx context.Context, date time.Time) ([]domain.Offer, error) {
	var out []domain.Offer
	for _, o := range f.offers {
		if o.ActiveOn(date) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) OffersByID(ctx context.Context, ids []uint64) (map[uint64]domain.Offer, error) {
	out := make(map[uint64]domain.Offer)
	for _, o := range f.offers {
		for _, id := range ids {
			if o.ID == id {
				out[id] = o
			}
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) ProductsByID(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error) {
	out := make(map[uint64]domain.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) LineFacts(ctx context.Context, from, until time.Time) ([]domain.OrderLineFact, error) {
	var out []domain.OrderLineFact
	for _, l := range f.lines {
		if l.OrderedAt.After(from) && !l.OrderedAt.After(until) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) ImpressionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error) {
	return f.impressions, nil
}

func (f *fakeHistoryRepo) RedemptionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error) {
	return f.redemptions, nil
}

// fakeFeatureRepo records replaces and serves them back.
type fakeFeatureRepo struct {
	customerRows []domain.CustomerFeatures
	offerRows    []domain.OfferFeatures
	replaces     int
}

func (f *fakeFeatureRepo) ReplaceCustomerFeatures(ctx context.Context, refDate time.Time, rows []domain.CustomerFeatures) error {
	f.customerRows = rows
	f.replaces++
	return nil
}

func (f *fakeFeatureRepo) ReplaceOfferFeatures(ctx context.Context, refDate time.Time, rows []domain.OfferFeatures) error {
	f.offerRows = rows
	f.replaces++
	return nil
}

func (f *fakeFeatureRepo) CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error) {
	return f.customerRows, nil
}

func (f *fakeFeatureRepo) OfferFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.OfferFeatures, error) {
	return f.offerRows, nil
}

func daysAgo(n int) time.Time {
	return refDate.AddDate(0, 0, -n)
}

func TestBuildCustomerFeatures_NoOrdersGetsSentinels(t *testing.T) {
	history := &fakeHistoryRepo{
		customers: []domain.Customer{
			{ID: 1, Segment: domain.SegmentBudget, LoyaltyTier: domain.TierBronze},
		},
	}
	featureRepo := &fakeFeatureRepo{}
	svc := NewService(history, featureRepo, config.DefaultPipelineConfig())

	n, err := svc.BuildCustomerFeatures(context.Background(), refDate)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, featureRepo.customerRows, 1)

	row := featureRepo.customerRows[0]
	assert.Equal(t, domain.RecencySentinel, row.RecencyDays)
	assert.Zero(t, row.Frequency)
	assert.Zero(t, row.Monetary)
	assert.Zero(t, row.CategoryEntropy)
	assert.Equal(t, domain.SegmentBudget, row.Segment)
	assert.Equal(t, domain.TierBronze, row.LoyaltyTier)
	assert.Empty(t, TopCategories(row))
}

func TestComputeCustomerRow_Aggregates(t *testing.T) {
	// two orders: one 10 days ago with a promo line, one 40 days ago with a
	// tier-3 line
	lines := []domain.OrderLineFact{
		{
			OrderID: 100, CustomerID: 1, ProductID: 7, OrderedAt: daysAgo(10),
			OrderTotal: 200, NumItems: 2,
			Quantity: 4, UnitPrice: 25, PricingTier: 1,
			IsPromo: true, DiscountAmount: 5,
			Category: "dairy", BasePrice: 25,
		},
		{
			OrderID: 100, CustomerID: 1, ProductID: 8, OrderedAt: daysAgo(10),
			OrderTotal: 200, NumItems: 2,
			Quantity: 4, UnitPrice: 25, PricingTier: 1,
			Category: "dairy", BasePrice: 25,
		},
		{
			OrderID: 101, CustomerID: 1, ProductID: 9, OrderedAt: daysAgo(40),
			OrderTotal: 160, NumItems: 1,
			Quantity: 2, UnitPrice: 80, PricingTier: 3,
			Category: "beverages", BasePrice: 100,
		},
	}
	row := computeCustomerRow(customerHistory{
		customer: domain.Customer{ID: 1, Segment: domain.SegmentFamily, LoyaltyTier: domain.TierGold},
		lines:    lines,
	}, refDate)

	assert.InDelta(t, 10.0, row.RecencyDays, 1e-9)
	assert.Equal(t, 2.0, row.Frequency)
	assert.Equal(t, 360.0, row.Monetary)
	assert.Equal(t, 180.0, row.AvgOrderValue)
	assert.InDelta(t, 1.5, row.AvgBasketSize, 1e-9)
	assert.InDelta(t, 5.0, row.AvgBasketQty, 1e-9)
	// 1 promo line out of 3
	assert.InDelta(t, 1.0/3.0, row.PromoAffinity, 1e-9)
	// promo depth 5/25
	assert.InDelta(t, 0.2, row.AvgDiscountDepth, 1e-9)
	// 2 of 10 units at tier 3, none at tier 2
	assert.InDelta(t, 0.2, row.Tier3PurchaseRatio, 1e-9)
	assert.Zero(t, row.Tier2PurchaseRatio)
	// tier-3 line saved (100-80)/100 = 20%
	assert.InDelta(t, 20.0, row.AvgTierSavingsPct, 1e-9)

	assert.Equal(t, []string{"dairy", "beverages"}, TopCategories(row))
}

func TestSpendEntropy(t *testing.T) {
	assert.Zero(t, spendEntropy(map[string]float64{"dairy": 50}, 50))

	// two equal categories: ln(2)
	even := map[string]float64{"dairy": 50, "beverages": 50}
	assert.InDelta(t, math.Log(2), spendEntropy(even, 100), 1e-9)

	// skew lowers entropy
	skew := map[string]float64{"dairy": 90, "beverages": 10}
	assert.Less(t, spendEntropy(skew, 100), math.Log(2))
}

func TestBuildOfferFeatures(t *testing.T) {
	history := &fakeHistoryRepo{
		offers: []domain.Offer{
			{ID: 1, ProductID: 10, DiscountType: domain.DiscountPercentage, DiscountValue: 20,
				StartDate: daysAgo(30), EndDate: refDate.AddDate(0, 0, 5)},
			{ID: 2, ProductID: 11, DiscountType: domain.DiscountFixed, DiscountValue: 50,
				StartDate: daysAgo(30), EndDate: refDate},
			{ID: 3, ProductID: 10, DiscountType: domain.DiscountBOGO,
				StartDate: daysAgo(30), EndDate: refDate.AddDate(0, 0, 14)},
		},
		products: map[uint64]domain.Product{
			10: {ID: 10, Category: "dairy", BasePrice: 100, Margin: 0.3},
			11: {ID: 11, Category: "snacks", BasePrice: 20, Margin: 0.2},
		},
		impressions: map[uint64]int64{1: 10, 2: 100},
		redemptions: map[uint64]int64{1: 1, 2: 30},
	}
	featureRepo := &fakeFeatureRepo{}
	svc := NewService(history, featureRepo, config.DefaultPipelineConfig())

	n, err := svc.BuildOfferFeatures(context.Background(), refDate)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	rows := make(map[uint64]domain.OfferFeatures)
	for _, r := range featureRepo.offerRows {
		rows[r.OfferID] = r
	}

	// percentage: 20% -> 0.2
	assert.InDelta(t, 0.2, rows[1].DiscountDepth, 1e-9)
	assert.InDelta(t, 100*0.3*0.2, rows[1].MarginImpact, 1e-9)
	assert.InDelta(t, 0.10, rows[1].HistoricalRedemptionRate, 1e-9)
	assert.InDelta(t, 5.0, rows[1].DaysUntilExpiry, 1e-9)

	// fixed amount above base price clamps to 1
	assert.InDelta(t, 1.0, rows[2].DiscountDepth, 1e-9)
	assert.InDelta(t, 0.0, rows[2].DaysUntilExpiry, 1e-9)

	// zero-impression offer falls back to the global rate 31/110
	assert.InDelta(t, 0.5, rows[3].DiscountDepth, 1e-9)
	assert.InDelta(t, 31.0/110.0, rows[3].HistoricalRedemptionRate, 1e-9)
	assert.Zero(t, rows[3].TotalImpressions)
}

func TestBuildOfferFeatures_NoActiveOffers(t *testing.T) {
	history := &fakeHistoryRepo{
		offers: []domain.Offer{
			{ID: 1, ProductID: 10, DiscountType: domain.DiscountPercentage, DiscountValue: 20,
				StartDate: daysAgo(60), EndDate: daysAgo(30)},
		},
	}
	featureRepo := &fakeFeatureRepo{}
	svc := NewService(history, featureRepo, config.DefaultPipelineConfig())

	n, err := svc.BuildOfferFeatures(context.Background(), refDate)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, featureRepo.replaces)
	assert.Empty(t, featureRepo.offerRows)
}

func TestInteractionFeatures(t *testing.T) {
	history := &fakeHistoryRepo{
		offers: []domain.Offer{
			{ID: 1, ProductID: 10, DiscountType: domain.DiscountPercentage, DiscountValue: 30,
				StartDate: daysAgo(30), EndDate: refDate.AddDate(0, 0, 5),
				SegmentScope: "family,premium"},
		},
		products: map[uint64]domain.Product{
			10: {ID: 10, Category: "dairy", BasePrice: 100},
		},
		lines: []domain.OrderLineFact{
			{OrderID: 1, CustomerID: 1, ProductID: 10, OrderedAt: daysAgo(12),
				Quantity: 2, UnitPrice: 50, Category: "dairy"},
			{OrderID: 2, CustomerID: 1, ProductID: 20, OrderedAt: daysAgo(5),
				Quantity: 1, UnitPrice: 100, Category: "beverages"},
		},
	}
	featureRepo := &fakeFeatureRepo{
		customerRows: []domain.CustomerFeatures{
			{CustomerID: 1, Segment: domain.SegmentFamily, LoyaltyTier: domain.TierGold, AvgDiscountDepth: 0.1},
			{CustomerID: 2, Segment: domain.SegmentHoreca, LoyaltyTier: domain.TierBronze},
		},
	}
	svc := NewService(history, featureRepo, config.DefaultPipelineConfig())

	pairs := []Pair{
		{CustomerID: 1, OfferID: 1},
		{CustomerID: 2, OfferID: 1},
		{CustomerID: 1, OfferID: 999},
	}
	out, err := svc.InteractionFeatures(context.Background(), pairs, refDate)
	require.NoError(t, err)
	require.Len(t, out, 3)

	known := out[Pair{CustomerID: 1, OfferID: 1}]
	assert.Equal(t, 1.0, known.BoughtProductBefore)
	assert.InDelta(t, 12.0, known.DaysSinceLastCatPurchase, 1e-9)
	// dairy spend 100 of 200 total
	assert.InDelta(t, 0.5, known.CategoryAffinityScore, 1e-9)
	assert.InDelta(t, 0.3-0.1, known.DiscountDepthVsUsual, 1e-9)
	assert.Equal(t, 1.0, known.ScopeMatch)

	// horeca customer is outside the segment scope
	offScope := out[Pair{CustomerID: 2, OfferID: 1}]
	assert.Zero(t, offScope.ScopeMatch)
	assert.Zero(t, offScope.BoughtProductBefore)
	assert.Equal(t, domain.CatRecencySentinel, offScope.DaysSinceLastCatPurchase)

	// unknown offer gets sentinels
	unknown := out[Pair{CustomerID: 1, OfferID: 999}]
	assert.Equal(t, domain.CatRecencySentinel, unknown.DaysSinceLastCatPurchase)
	assert.Zero(t, unknown.ScopeMatch)
}

func TestVector_FollowsColumnOrder(t *testing.T) {
	cust := domain.CustomerFeatures{RecencyDays: 3, Monetary: 500}
	off := domain.OfferFeatures{DiscountDepth: 0.25, IsOwnBrand: true}
	inter := domain.InteractionFeatures{ScopeMatch: 1}

	x := Vector(Columns, cust, off, inter)
	require.Len(t, x, len(Columns))
	assert.Equal(t, 3.0, x[0])
	assert.Equal(t, 500.0, x[2])

	// unknown column fills zero
	y := Vector([]string{"recency_days", "does_not_exist"}, cust, off, inter)
	assert.Equal(t, []float64{3, 0}, y)
}
