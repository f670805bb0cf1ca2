package evaluate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
)

const (
	// below this many forward-window redemptions the window is too sparse
	// to judge a ranking, so evaluation turns around and looks back instead
	minForwardRedemptions = 50
	fallbackLookbackDays  = 30

	windowForward  = "forward"
	windowLookback = "lookback"
)

type RecommendationReader interface {
	RecommendationsFor(ctx context.Context, runDate time.Time) ([]domain.Recommendation, error)
}

type RedemptionSource interface {
	RedemptionsBetween(ctx context.Context, from, until time.Time) ([]domain.Redemption, error)
}

type PoolReader interface {
	PoolFor(ctx context.Context, runDate time.Time) ([]domain.CandidatePoolEntry, error)
}

type Service struct {
	recRepo   RecommendationReader
	eventRepo RedemptionSource
	poolRepo  PoolReader
	cfg       config.PipelineConfig
}

func NewService(recRepo RecommendationReader, eventRepo RedemptionSource, poolRepo PoolReader, cfg config.PipelineConfig) *Service {
	return &Service{recRepo: recRepo, eventRepo: eventRepo, poolRepo: poolRepo, cfg: cfg}
}

// Metrics is one run's ranking quality summary, averaged over customers
// that received recommendations.
type Metrics struct {
	RunDate            time.Time `json:"run_date"`
	Window             string    `json:"window"`
	PrecisionAtN       float64   `json:"precision_at_n"`
	RecallAtN          float64   `json:"recall_at_n"`
	MRR                float64   `json:"mrr"`
	NDCG               float64   `json:"ndcg"`
	BaselineNDCG       float64   `json:"baseline_ndcg"`
	NDCGLift           float64   `json:"ndcg_lift"`
	CustomersEvaluated int       `json:"customers_evaluated"`
	Redemptions        int       `json:"redemptions"`
}

// Run scores the run date's recommendations against redemptions in the
// following window, falling back to a recent lookback window when the
// forward window is too sparse.
func (s *Service) Run(ctx context.Context, runDate time.Time) (*Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	recs, err := s.recRepo.RecommendationsFor(ctx, runDate)
	if err != nil {
		return nil, fmt.Errorf("load recommendations: %w", err)
	}
	if len(recs) == 0 {
		logger.Warn("nothing to evaluate", "run_date", runDate.Format("2006-01-02"))
		return &Metrics{RunDate: runDate, Window: windowForward}, nil
	}

	relevant, window, total, err := s.relevantOffers(ctx, runDate)
	if err != nil {
		return nil, err
	}

	byCustomer := make(map[uint64][]domain.Recommendation)
	for _, r := range recs {
		byCustomer[r.CustomerID] = append(byCustomer[r.CustomerID], r)
	}

	pool, err := s.poolRepo.PoolFor(ctx, runDate)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}
	poolByCustomer := make(map[uint64][]uint64)
	for _, entry := range pool {
		poolByCustomer[entry.CustomerID] = append(poolByCustomer[entry.CustomerID], entry.OfferID)
	}

	topN := s.cfg.TopN
	if topN <= 0 {
		topN = 10
	}

	customerIDs := make([]uint64, 0, len(byCustomer))
	for id := range byCustomer {
		customerIDs = append(customerIDs, id)
	}
	sort.Slice(customerIDs, func(i, j int) bool { return customerIDs[i] < customerIDs[j] })

	rng := rand.New(rand.NewSource(int64(s.cfg.Seed)))
	m := &Metrics{RunDate: runDate, Window: window, Redemptions: total}

	for _, customerID := range customerIDs {
		list := byCustomer[customerID]
		sort.Slice(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })

		ranked := make([]uint64, 0, len(list))
		for _, r := range list {
			ranked = append(ranked, r.OfferID)
		}
		rel := relevant[customerID]

		m.PrecisionAtN += precisionAtN(ranked, rel, topN)
		m.RecallAtN += recallAtN(ranked, rel, topN)
		m.MRR += reciprocalRank(ranked, rel)
		m.NDCG += ndcgAtN(ranked, rel, topN)
		m.BaselineNDCG += ndcgAtN(randomRanking(poolByCustomer[customerID], topN, rng), rel, topN)
		m.CustomersEvaluated++
	}

	if m.CustomersEvaluated > 0 {
		n := float64(m.CustomersEvaluated)
		m.PrecisionAtN /= n
		m.RecallAtN /= n
		m.MRR /= n
		m.NDCG /= n
		m.BaselineNDCG /= n
	}
	if m.BaselineNDCG > 0 {
		m.NDCGLift = m.NDCG / m.BaselineNDCG
	}

	logger.Info("evaluation done",
		"run_date", runDate.Format("2006-01-02"),
		"window", window,
		"customers", m.CustomersEvaluated,
		"ndcg", m.NDCG,
		"ndcg_lift", m.NDCGLift,
	)
	return m, nil
}

// relevantOffers returns the per-customer redeemed offer sets for the
// evaluation window, which window was used, and the total redemption count.
func (s *Service) relevantOffers(ctx context.Context, runDate time.Time) (map[uint64]map[uint64]struct{}, string, int, error) {
	forwardEnd := runDate.AddDate(0, 0, s.cfg.RedemptionWindow)
	redemptions, err := s.eventRepo.RedemptionsBetween(ctx, runDate, forwardEnd)
	if err != nil {
		return nil, "", 0, fmt.Errorf("load redemptions: %w", err)
	}
	window := windowForward

	if len(redemptions) < minForwardRedemptions {
		from := runDate.AddDate(0, 0, -fallbackLookbackDays)
		redemptions, err = s.eventRepo.RedemptionsBetween(ctx, from, runDate)
		if err != nil {
			return nil, "", 0, fmt.Errorf("load fallback redemptions: %w", err)
		}
		window = windowLookback
		logger.Warn("forward window too sparse, evaluating against lookback",
			"run_date", runDate.Format("2006-01-02"),
			"redemptions", len(redemptions),
		)
	}

	relevant := make(map[uint64]map[uint64]struct{})
	for _, r := range redemptions {
		set, ok := relevant[r.CustomerID]
		if !ok {
			set = make(map[uint64]struct{})
			relevant[r.CustomerID] = set
		}
		set[r.OfferID] = struct{}{}
	}
	return relevant, window, len(redemptions), nil
}

func randomRanking(pool []uint64, topN int, rng *rand.Rand) []uint64 {
	shuffled := append([]uint64(nil), pool...)
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i] < shuffled[j] })
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if len(shuffled) > topN {
		shuffled = shuffled[:topN]
	}
	return shuffled
}

func precisionAtN(ranked []uint64, relevant map[uint64]struct{}, n int) float64 {
	if len(relevant) == 0 || n == 0 {
		return 0
	}
	hits := 0
	for i, id := range ranked {
		if i >= n {
			break
		}
		if _, ok := relevant[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

func recallAtN(ranked []uint64, relevant map[uint64]struct{}, n int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	hits := 0
	for i, id := range ranked {
		if i >= n {
			break
		}
		if _, ok := relevant[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

func reciprocalRank(ranked []uint64, relevant map[uint64]struct{}) float64 {
	for i, id := range ranked {
		if _, ok := relevant[id]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// ndcgAtN uses binary relevance with a 1/log2(rank+1) discount. The ideal
// DCG packs all relevant items at the top of the same length list.
func ndcgAtN(ranked []uint64, relevant map[uint64]struct{}, n int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	var dcg float64
	for i, id := range ranked {
		if i >= n {
			break
		}
		if _, ok := relevant[id]; ok {
			dcg += 1 / math.Log2(float64(i)+2)
		}
	}

	ideal := len(relevant)
	if ideal > n {
		ideal = n
	}
	var idcg float64
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}
