package features

import (
	"context"
	"time"

	"offerRank/domain"
	"offerRank/pkg/config"
)

// ---- Repository interfaces ----

// HistoryRepository reads the immutable transactional inputs. All methods
// are read-only.
type HistoryRepository interface {
	Customers(ctx context.Context) ([]domain.Customer, error)
	OffersActiveOn(ctx context.Context, date time.Time) ([]domain.Offer, error)
	OffersByID(ctx context.Context, ids []uint64) (map[uint64]domain.Offer, error)
	ProductsByID(ctx context.Context, ids []uint64) (map[uint64]domain.Product, error)
	// LineFacts returns flattened order lines with from < ordered_at <= until.
	LineFacts(ctx context.Context, from, until time.Time) ([]domain.OrderLineFact, error)
	// ImpressionCounts / RedemptionCounts return per-offer totals strictly
	// before the given date.
	ImpressionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error)
	RedemptionCounts(ctx context.Context, before time.Time) (map[uint64]int64, error)
}

// FeatureRepository owns the rebuilt-per-run feature tables. Replace methods
// must be transactional: delete the reference date's rows and insert the new
// ones in a single transaction.
type FeatureRepository interface {
	ReplaceCustomerFeatures(ctx context.Context, refDate time.Time, rows []domain.CustomerFeatures) error
	ReplaceOfferFeatures(ctx context.Context, refDate time.Time, rows []domain.OfferFeatures) error
	CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error)
	OfferFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.OfferFeatures, error)
}

// ---- Service ----

type Service struct {
	historyRepo HistoryRepository
	featureRepo FeatureRepository
	cfg         config.PipelineConfig
}

func NewService(historyRepo HistoryRepository, featureRepo FeatureRepository, cfg config.PipelineConfig) *Service {
	return &Service{
		historyRepo: historyRepo,
		featureRepo: featureRepo,
		cfg:         cfg,
	}
}
