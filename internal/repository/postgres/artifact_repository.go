package postgres

import (
	"context"
	"fmt"

	"offerRank/domain"

	"gorm.io/gorm"
)

// ArtifactRepository persists versioned ranker models. Old versions are
// kept for audit; exactly one row is active at a time.
type ArtifactRepository struct {
	DB *gorm.DB
}

func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{DB: db}
}

func (r *ArtifactRepository) Active(ctx context.Context) (*domain.RankerArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var artifact domain.RankerArtifact
	err := r.DB.WithContext(ctx).First(&artifact, "active = ?", true).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active artifact: %w", err)
	}

	return &artifact, nil
}

// SaveActive inserts the new artifact and deactivates every other one in
// the same transaction.
func (r *ArtifactRepository) SaveActive(ctx context.Context, artifact *domain.RankerArtifact) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.RankerArtifact{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return err
		}
		artifact.Active = true
		return tx.Create(artifact).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}

	return nil
}
