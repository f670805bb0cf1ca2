package postgres

import (
	"context"
	"fmt"
	"time"

	"offerRank/domain"

	"gorm.io/gorm"
)

// PoolRepository owns the candidate pool for each run date.
type PoolRepository struct {
	DB *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{DB: db}
}

func (r *PoolRepository) ReplacePool(ctx context.Context, runDate time.Time, entries []domain.CandidatePoolEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_date = ?", runDate).Delete(&domain.CandidatePoolEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace candidate pool: %w", err)
	}

	return nil
}

func (r *PoolRepository) PoolFor(ctx context.Context, runDate time.Time) ([]domain.CandidatePoolEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var entries []domain.CandidatePoolEntry
	err := r.DB.WithContext(ctx).
		Where("run_date = ?", runDate).
		Order("customer_id, offer_id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate pool: %w", err)
	}

	return entries, nil
}

// RecommendationRepository owns the final per-run ranking output.
type RecommendationRepository struct {
	DB *gorm.DB
}

func NewRecommendationRepository(db *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{DB: db}
}

func (r *RecommendationRepository) ReplaceRecommendations(ctx context.Context, runDate time.Time, recs []domain.Recommendation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_date = ?", runDate).Delete(&domain.Recommendation{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace recommendations: %w", err)
	}

	return nil
}

func (r *RecommendationRepository) RecommendationsFor(ctx context.Context, runDate time.Time) ([]domain.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var recs []domain.Recommendation
	err := r.DB.WithContext(ctx).
		Where("run_date = ?", runDate).
		Order("customer_id, rank").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}

	return recs, nil
}

// RecommendationsForCustomer serves the read API: the customer's ranking
// for a specific run date, or the most recent one when runDate is nil.
func (r *RecommendationRepository) RecommendationsForCustomer(ctx context.Context, customerID uint64, runDate *time.Time) ([]domain.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Where("customer_id = ?", customerID)
	if runDate != nil {
		q = q.Where("run_date = ?", *runDate)
	} else {
		var latest *time.Time
		err := r.DB.WithContext(ctx).
			Model(&domain.Recommendation{}).
			Where("customer_id = ?", customerID).
			Select("MAX(run_date)").
			Scan(&latest).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query latest run date: %w", err)
		}
		if latest == nil {
			return nil, nil
		}
		q = q.Where("run_date = ?", *latest)
	}

	var recs []domain.Recommendation
	if err := q.Order("rank").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}

	return recs, nil
}

// RunRepository is the append-only pipeline audit log.
type RunRepository struct {
	DB *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{DB: db}
}

func (r *RunRepository) AppendRun(ctx context.Context, run *domain.PipelineRun) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to append pipeline run: %w", err)
	}

	return nil
}

func (r *RunRepository) RunsFor(ctx context.Context, runDate *time.Time, limit int) ([]domain.PipelineRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	q := r.DB.WithContext(ctx).Order("id DESC").Limit(limit)
	if runDate != nil {
		q = q.Where("run_date = ?", *runDate)
	}

	var runs []domain.PipelineRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}

	return runs, nil
}

// LatestStepRun returns the most recent run row for one step, optionally
// pinned to a run date. Nil when the step has never run.
func (r *RunRepository) LatestStepRun(ctx context.Context, step, status string, runDate *time.Time) (*domain.PipelineRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Where("step = ? AND status = ?", step, status)
	if runDate != nil {
		q = q.Where("run_date = ?", *runDate)
	}

	var run domain.PipelineRun
	err := q.Order("id DESC").First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline run: %w", err)
	}

	return &run, nil
}

// DriftRepository appends to and reads the drift log.
type DriftRepository struct {
	DB *gorm.DB
}

func NewDriftRepository(db *gorm.DB) *DriftRepository {
	return &DriftRepository{DB: db}
}

func (r *DriftRepository) AppendDriftLog(ctx context.Context, entries []domain.DriftLogEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	if err := r.DB.WithContext(ctx).CreateInBatches(entries, insertBatchSize).Error; err != nil {
		return fmt.Errorf("failed to append drift log: %w", err)
	}

	return nil
}

func (r *DriftRepository) DriftFor(ctx context.Context, runDate *time.Time, limit int) ([]domain.DriftLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	q := r.DB.WithContext(ctx).Order("id DESC").Limit(limit)
	if runDate != nil {
		q = q.Where("run_date = ?", *runDate)
	}

	var entries []domain.DriftLogEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query drift log: %w", err)
	}

	return entries, nil
}
