package postgres

import (
	"context"
	"fmt"
	"time"

	"offerRank/domain"

	"gorm.io/gorm"
)

const insertBatchSize = 500

// FeatureRepository owns the per-run feature snapshot tables. Replaces are
// transactional so a crashed rebuild never leaves a half-written snapshot.
type FeatureRepository struct {
	DB *gorm.DB
}

func NewFeatureRepository(db *gorm.DB) *FeatureRepository {
	return &FeatureRepository{DB: db}
}

func (r *FeatureRepository) ReplaceCustomerFeatures(ctx context.Context, refDate time.Time, rows []domain.CustomerFeatures) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference_date = ?", refDate).Delete(&domain.CustomerFeatures{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace customer features: %w", err)
	}

	return nil
}

func (r *FeatureRepository) ReplaceOfferFeatures(ctx context.Context, refDate time.Time, rows []domain.OfferFeatures) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference_date = ?", refDate).Delete(&domain.OfferFeatures{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace offer features: %w", err)
	}

	return nil
}

func (r *FeatureRepository) CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.CustomerFeatures
	err := r.DB.WithContext(ctx).
		Where("reference_date = ?", refDate).
		Order("customer_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query customer features: %w", err)
	}

	return rows, nil
}

func (r *FeatureRepository) OfferFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.OfferFeatures, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.OfferFeatures
	err := r.DB.WithContext(ctx).
		Where("reference_date = ?", refDate).
		Order("offer_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query offer features: %w", err)
	}

	return rows, nil
}
