package candidates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
	"offerRank/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

// Per-strategy retrieval limits. The union is additionally capped at the
// configured pool size.
const (
	categoryAffinityLimit = 60
	segmentPopularLimit   = 40
	repeatPurchaseLimit   = 30
	tierUpgradeLimit      = 20
	crossSellLimit        = 20
	ownBrandLimit         = 15
	highMarginLimit       = 15

	// segment popularity needs a floor of observations before a redemption
	// rate means anything
	minSegmentImpressions = 10
)

// ---- Repository interfaces ----

type HistoryRepository interface {
	Customers(ctx context.Context) ([]domain.Customer, error)
	OffersActiveOn(ctx context.Context, date time.Time) ([]domain.Offer, error)
	ProductsByID(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error)
	LineFacts(ctx context.Context, from, until time.Time) ([]domain.OrderLineFact, error)
	SegmentOfferStats(ctx context.Context, before time.Time) ([]domain.SegmentOfferStat, error)
}

type FeatureReader interface {
	CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error)
}

type PoolRepository interface {
	ReplacePool(ctx context.Context, runDate time.Time, entries []domain.CandidatePoolEntry) error
}

// ---- Service ----

type Service struct {
	historyRepo HistoryRepository
	featureRepo FeatureReader
	poolRepo    PoolRepository
	cfg         config.PipelineConfig
}

func NewService(historyRepo HistoryRepository, featureRepo FeatureReader, poolRepo PoolRepository, cfg config.PipelineConfig) *Service {
	return &Service{
		historyRepo: historyRepo,
		featureRepo: featureRepo,
		poolRepo:    poolRepo,
		cfg:         cfg,
	}
}

// Generate builds the candidate pool for every customer and transactionally
// replaces the run date's pool. Retrieval is deterministic: all indexes use
// stable sort keys with offer id as the final tie-break.
func (s *Service) Generate(ctx context.Context, runDate time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	offers, err := s.historyRepo.OffersActiveOn(ctx, runDate)
	if err != nil {
		return 0, fmt.Errorf("load active offers: %w", err)
	}
	if len(offers) == 0 {
		logger.Warn("no active offers, pool will be empty", "run_date", runDate.Format("2006-01-02"))
		if err := s.poolRepo.ReplacePool(ctx, runDate, nil); err != nil {
			return 0, fmt.Errorf("replace pool: %w", err)
		}
		return 0, nil
	}

	customers, err := s.historyRepo.Customers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load customers: %w", err)
	}

	idx, err := s.buildIndex(ctx, runDate, offers)
	if err != nil {
		return 0, err
	}

	perCustomer := make([][]domain.CandidatePoolEntry, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for i, cust := range customers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCustomer[i] = s.generateForCustomer(cust, idx, runDate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("generate candidates: %w", err)
	}

	var entries []domain.CandidatePoolEntry
	for _, rows := range perCustomer {
		entries = append(entries, rows...)
	}

	if err := s.poolRepo.ReplacePool(ctx, runDate, entries); err != nil {
		return 0, fmt.Errorf("replace pool: %w", err)
	}

	metrics.CandidatesGenerated.Add(float64(len(entries)))
	logger.Info("candidate pool built",
		"run_date", runDate.Format("2006-01-02"),
		"entries", len(entries),
		"customers", len(customers),
	)
	return len(entries), nil
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}

// generateForCustomer runs every strategy in priority order and unions the
// results. The first strategy to propose an offer keeps the tag.
func (s *Service) generateForCustomer(cust domain.Customer, idx *retrievalIndex, runDate time.Time) []domain.CandidatePoolEntry {
	poolSize := s.cfg.CandidatePoolSize
	if poolSize <= 0 {
		poolSize = 200
	}

	profile := idx.profile(cust.ID)

	proposals := []struct {
		strategy domain.Strategy
		offers   []uint64
	}{
		{domain.StrategyCategoryAffinity, idx.categoryAffinity(profile, categoryAffinityLimit)},
		{domain.StrategySegmentPopular, idx.segmentPopular(cust.Segment, segmentPopularLimit)},
		{domain.StrategyRepeatPurchase, idx.repeatPurchase(profile, repeatPurchaseLimit)},
		{domain.StrategyTierUpgrade, idx.tierUpgrade(profile, tierUpgradeLimit)},
		{domain.StrategyCrossSell, idx.crossSell(profile, cust.Segment, crossSellLimit)},
		{domain.StrategyOwnBrand, idx.ownBrandSwitch(profile, ownBrandLimit)},
		{domain.StrategyHighMargin, idx.highMargin(highMarginLimit)},
	}

	seen := make(map[uint64]struct{})
	entries := make([]domain.CandidatePoolEntry, 0, poolSize)

	for _, prop := range proposals {
		for _, offerID := range prop.offers {
			if len(entries) >= poolSize {
				return entries
			}
			if _, dup := seen[offerID]; dup {
				continue
			}
			offer, ok := idx.offersByID[offerID]
			if !ok || !offer.EligibleFor(cust) {
				continue
			}
			if idx.redemptionCapReached(offer) {
				continue
			}
			seen[offerID] = struct{}{}
			entries = append(entries, domain.CandidatePoolEntry{
				RunDate:    runDate,
				CustomerID: cust.ID,
				OfferID:    offerID,
				Strategy:   prop.strategy,
			})
		}
	}

	return entries
}

// sortOfferIDs sorts ascending in place and returns the slice.
func sortOfferIDs(ids []uint64) []uint64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
