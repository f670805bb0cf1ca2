package evaluate

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

var runDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

type fakeRecs struct {
	recs []domain.Recommendation
}

func (f *fakeRecs) RecommendationsFor(ctx context.Context, runDate time.Time) ([]domain.Recommendation, error) {
	return f.recs, nil
}

type fakeRedemptions struct {
	redemptions []domain.Redemption
}

func (f *fakeRedemptions) RedemptionsBetween(ctx context.Context, from, until time.Time) ([]domain.Redemption, error) {
	var out []domain.Redemption
	for _, r := range f.redemptions {
		if !r.RedeemedAt.Before(from) && r.RedeemedAt.Before(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePool struct {
	entries []domain.CandidatePoolEntry
}

func (f *fakePool) PoolFor(ctx context.Context, runDate time.Time) ([]domain.CandidatePoolEntry, error) {
	return f.entries, nil
}

func rec(customerID, offerID uint64, rank int) domain.Recommendation {
	return domain.Recommendation{
		RunDate: runDate, CustomerID: customerID, OfferID: offerID,
		Rank: rank, Score: 1.0 / float64(rank),
	}
}

func relevantSet(ids ...uint64) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestRankingMetrics(t *testing.T) {
	ranked := []uint64{10, 20, 30, 40, 50}

	// relevant item at rank 2 only
	rel := relevantSet(20)
	assert.InDelta(t, 0.1, precisionAtN(ranked, rel, 10), 1e-9)
	assert.InDelta(t, 1.0, recallAtN(ranked, rel, 10), 1e-9)
	assert.InDelta(t, 0.5, reciprocalRank(ranked, rel), 1e-9)
	// DCG = 1/log2(3), IDCG = 1/log2(2)
	assert.InDelta(t, (1/math.Log2(3))/(1/math.Log2(2)), ndcgAtN(ranked, rel, 10), 1e-9)

	// nothing relevant: everything 0, never NaN
	empty := relevantSet()
	assert.Zero(t, precisionAtN(ranked, empty, 10))
	assert.Zero(t, recallAtN(ranked, empty, 10))
	assert.Zero(t, reciprocalRank(ranked, empty))
	assert.Zero(t, ndcgAtN(ranked, empty, 10))

	// relevant item outside the ranking
	missed := relevantSet(999)
	assert.Zero(t, precisionAtN(ranked, missed, 10))
	assert.Zero(t, ndcgAtN(ranked, missed, 10))

	// perfect ordering of two relevant items
	perfect := relevantSet(10, 20)
	assert.InDelta(t, 1.0, ndcgAtN(ranked, perfect, 10), 1e-9)
	assert.InDelta(t, 1.0, reciprocalRank(ranked, perfect), 1e-9)
}

func buildFixture(redemptions []domain.Redemption) (*Service, *fakeRecs) {
	recs := &fakeRecs{recs: []domain.Recommendation{
		rec(1, 10, 1), rec(1, 20, 2), rec(1, 30, 3),
		rec(2, 10, 1), rec(2, 40, 2),
	}}
	pool := &fakePool{entries: []domain.CandidatePoolEntry{
		{RunDate: runDate, CustomerID: 1, OfferID: 10},
		{RunDate: runDate, CustomerID: 1, OfferID: 20},
		{RunDate: runDate, CustomerID: 1, OfferID: 30},
		{RunDate: runDate, CustomerID: 2, OfferID: 10},
		{RunDate: runDate, CustomerID: 2, OfferID: 40},
	}}
	svc := NewService(recs, &fakeRedemptions{redemptions: redemptions}, pool, config.DefaultPipelineConfig())
	return svc, recs
}

func forwardRedemptions(n int) []domain.Redemption {
	out := make([]domain.Redemption, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Redemption{
			CustomerID: uint64(9000 + i), OfferID: uint64(8000 + i),
			RedeemedAt: runDate.AddDate(0, 0, 2),
		})
	}
	return out
}

func TestRun_ForwardWindow(t *testing.T) {
	// pad with unrelated redemptions so the forward window is dense enough
	redemptions := forwardRedemptions(60)
	redemptions = append(redemptions,
		domain.Redemption{CustomerID: 1, OfferID: 20, RedeemedAt: runDate.AddDate(0, 0, 3)},
	)

	svc, _ := buildFixture(redemptions)
	m, err := svc.Run(context.Background(), runDate)
	require.NoError(t, err)

	assert.Equal(t, windowForward, m.Window)
	assert.Equal(t, 2, m.CustomersEvaluated)
	// customer 1 hit at rank 2, customer 2 nothing
	assert.InDelta(t, 0.5*0.5, m.MRR, 1e-9)
	assert.InDelta(t, (0.1+0)/2, m.PrecisionAtN, 1e-9)
	assert.InDelta(t, (1.0+0)/2, m.RecallAtN, 1e-9)
	assert.False(t, math.IsNaN(m.NDCG))
	assert.False(t, math.IsNaN(m.NDCGLift))
}

func TestRun_LiftIsRatioOfModelToBaseline(t *testing.T) {
	// every customer's pool holds exactly the one redeemed offer, so the
	// model and the random baseline both rank it first: NDCG is 1 on both
	// sides and the lift must come out as the ratio 1.0, not 0
	var recRows []domain.Recommendation
	var poolRows []domain.CandidatePoolEntry
	var redemptions []domain.Redemption
	for i := 0; i < 60; i++ {
		cid := uint64(i + 1)
		oid := uint64(100 + i)
		recRows = append(recRows, rec(cid, oid, 1))
		poolRows = append(poolRows, domain.CandidatePoolEntry{
			RunDate: runDate, CustomerID: cid, OfferID: oid,
		})
		redemptions = append(redemptions, domain.Redemption{
			CustomerID: cid, OfferID: oid, RedeemedAt: runDate.AddDate(0, 0, 1),
		})
	}
	svc := NewService(
		&fakeRecs{recs: recRows},
		&fakeRedemptions{redemptions: redemptions},
		&fakePool{entries: poolRows},
		config.DefaultPipelineConfig(),
	)

	m, err := svc.Run(context.Background(), runDate)
	require.NoError(t, err)

	assert.Equal(t, windowForward, m.Window)
	assert.InDelta(t, 1.0, m.NDCG, 1e-9)
	assert.InDelta(t, 1.0, m.BaselineNDCG, 1e-9)
	assert.InDelta(t, 1.0, m.NDCGLift, 1e-9)
}

func TestRun_SparseForwardFallsBackToLookback(t *testing.T) {
	// only one forward redemption, but plenty in the past month
	redemptions := []domain.Redemption{
		{CustomerID: 1, OfferID: 10, RedeemedAt: runDate.AddDate(0, 0, 1)},
	}
	for i := 0; i < 60; i++ {
		redemptions = append(redemptions, domain.Redemption{
			CustomerID: uint64(9000 + i), OfferID: uint64(8000 + i),
			RedeemedAt: runDate.AddDate(0, 0, -5),
		})
	}
	redemptions = append(redemptions,
		domain.Redemption{CustomerID: 1, OfferID: 30, RedeemedAt: runDate.AddDate(0, 0, -10)},
	)

	svc, _ := buildFixture(redemptions)
	m, err := svc.Run(context.Background(), runDate)
	require.NoError(t, err)

	assert.Equal(t, windowLookback, m.Window)
	// in the lookback window only offer 30 counts for customer 1
	assert.InDelta(t, (1.0/3.0)/2, m.MRR, 1e-9)
}

func TestRun_NoRecommendations(t *testing.T) {
	svc := NewService(&fakeRecs{}, &fakeRedemptions{}, &fakePool{}, config.DefaultPipelineConfig())
	m, err := svc.Run(context.Background(), runDate)
	require.NoError(t, err)
	assert.Zero(t, m.CustomersEvaluated)
	assert.Zero(t, m.NDCG)
}

func TestRun_Deterministic(t *testing.T) {
	redemptions := forwardRedemptions(60)
	redemptions = append(redemptions,
		domain.Redemption{CustomerID: 1, OfferID: 20, RedeemedAt: runDate.AddDate(0, 0, 3)},
	)

	svc, _ := buildFixture(redemptions)
	first, err := svc.Run(context.Background(), runDate)
	require.NoError(t, err)

	svc2, _ := buildFixture(redemptions)
	second, err := svc2.Run(context.Background(), runDate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
