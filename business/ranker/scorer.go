package ranker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"offerRank/business/features"
	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
	"offerRank/pkg/metrics"
)

type PoolReader interface {
	PoolFor(ctx context.Context, runDate time.Time) ([]domain.CandidatePoolEntry, error)
}

type RecommendationRepository interface {
	ReplaceRecommendations(ctx context.Context, runDate time.Time, recs []domain.Recommendation) error
}

type Scorer struct {
	poolRepo     PoolReader
	featureRepo  FeatureSource
	interactions InteractionSource
	recRepo      RecommendationRepository
	cfg          config.PipelineConfig
}

func NewScorer(poolRepo PoolReader, featureRepo FeatureSource, interactions InteractionSource, recRepo RecommendationRepository, cfg config.PipelineConfig) *Scorer {
	return &Scorer{
		poolRepo:     poolRepo,
		featureRepo:  featureRepo,
		interactions: interactions,
		recRepo:      recRepo,
		cfg:          cfg,
	}
}

// Score predicts redemption probability for every pooled pair and replaces
// the run date's recommendations with each customer's top N. A pooled
// customer without a feature row is a broken pipeline ordering and aborts
// the step.
func (s *Scorer) Score(ctx context.Context, runDate time.Time, artifact *domain.RankerArtifact) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}
	if artifact == nil {
		return 0, fmt.Errorf("no ranker artifact to score with")
	}

	model, err := decodeModel(artifact)
	if err != nil {
		return 0, err
	}
	columns, err := artifactColumns(artifact)
	if err != nil {
		return 0, err
	}

	pool, err := s.poolRepo.PoolFor(ctx, runDate)
	if err != nil {
		return 0, fmt.Errorf("load candidate pool: %w", err)
	}
	if len(pool) == 0 {
		logger.Warn("empty candidate pool, clearing recommendations", "run_date", runDate.Format("2006-01-02"))
		if err := s.recRepo.ReplaceRecommendations(ctx, runDate, nil); err != nil {
			return 0, fmt.Errorf("replace recommendations: %w", err)
		}
		return 0, nil
	}

	custRows, err := s.featureRepo.CustomerFeaturesAt(ctx, runDate)
	if err != nil {
		return 0, fmt.Errorf("load customer features: %w", err)
	}
	offerRows, err := s.featureRepo.OfferFeaturesAt(ctx, runDate)
	if err != nil {
		return 0, fmt.Errorf("load offer features: %w", err)
	}
	custByID := make(map[uint64]domain.CustomerFeatures, len(custRows))
	for _, r := range custRows {
		custByID[r.CustomerID] = r
	}
	offerByID := make(map[uint64]domain.OfferFeatures, len(offerRows))
	for _, r := range offerRows {
		offerByID[r.OfferID] = r
	}

	pairs := make([]features.Pair, 0, len(pool))
	pooled := make(map[features.Pair]struct{}, len(pool))
	for _, entry := range pool {
		p := features.Pair{CustomerID: entry.CustomerID, OfferID: entry.OfferID}
		pairs = append(pairs, p)
		pooled[p] = struct{}{}
	}
	inter, err := s.interactions.InteractionFeatures(ctx, pairs, runDate)
	if err != nil {
		return 0, fmt.Errorf("build interaction features: %w", err)
	}

	type scored struct {
		offerID uint64
		score   float64
	}
	byCustomer := make(map[uint64][]scored)

	for _, entry := range pool {
		cust, ok := custByID[entry.CustomerID]
		if !ok {
			return 0, fmt.Errorf("pooled customer %d has no feature row for %s", entry.CustomerID, runDate.Format("2006-01-02"))
		}
		p := features.Pair{CustomerID: entry.CustomerID, OfferID: entry.OfferID}
		x := features.Vector(columns, cust, offerByID[entry.OfferID], inter[p])
		byCustomer[entry.CustomerID] = append(byCustomer[entry.CustomerID], scored{
			offerID: entry.OfferID,
			score:   model.Predict(x),
		})
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

	var recs []domain.Recommendation
	for _, customerID := range customerIDs {
		list := byCustomer[customerID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].score == list[j].score {
				return list[i].offerID < list[j].offerID
			}
			return list[i].score > list[j].score
		})
		if len(list) > topN {
			list = list[:topN]
		}
		for rank, sc := range list {
			p := features.Pair{CustomerID: customerID, OfferID: sc.offerID}
			if _, ok := pooled[p]; !ok {
				return 0, fmt.Errorf("scored pair (%d, %d) is not in the candidate pool", customerID, sc.offerID)
			}
			recs = append(recs, domain.Recommendation{
				RunDate:    runDate,
				CustomerID: customerID,
				OfferID:    sc.offerID,
				Score:      sc.score,
				Rank:       rank + 1,
			})
		}
	}

	if err := s.recRepo.ReplaceRecommendations(ctx, runDate, recs); err != nil {
		return 0, fmt.Errorf("replace recommendations: %w", err)
	}

	metrics.RecommendationsWritten.Add(float64(len(recs)))
	logger.Info("recommendations written",
		"run_date", runDate.Format("2006-01-02"),
		"rows", len(recs),
		"customers", len(customerIDs),
		"model", artifact.ModelName,
	)
	return len(recs), nil
}
