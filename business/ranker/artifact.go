package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"offerRank/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ArtifactRepository persists versioned models. SaveActive must deactivate
// every other artifact in the same transaction so exactly one stays active.
type ArtifactRepository interface {
	Active(ctx context.Context) (*domain.RankerArtifact, error)
	SaveActive(ctx context.Context, artifact *domain.RankerArtifact) error
}

// predictor is what scoring needs from a decoded model.
type predictor interface {
	Predict(x []float64) float64
}

func newArtifact(name string, model predictor, auc float64, trainDate time.Time, columns []string) (*domain.RankerArtifact, error) {
	params, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode model params: %w", err)
	}
	names, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("encode feature names: %w", err)
	}
	return &domain.RankerArtifact{
		ID:            uuid.NewString(),
		ModelName:     name,
		TrainDate:     trainDate,
		ValidationAUC: auc,
		FeatureNames:  datatypes.JSON(names),
		Params:        datatypes.JSON(params),
		Active:        true,
	}, nil
}

func decodeModel(artifact *domain.RankerArtifact) (predictor, error) {
	switch artifact.ModelName {
	case modelNameLogistic:
		var m logisticModel
		if err := json.Unmarshal(artifact.Params, &m); err != nil {
			return nil, fmt.Errorf("decode logistic params: %w", err)
		}
		return &m, nil
	case modelNameGBDT:
		var m gbdtModel
		if err := json.Unmarshal(artifact.Params, &m); err != nil {
			return nil, fmt.Errorf("decode gbdt params: %w", err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown model name %q", artifact.ModelName)
	}
}

func artifactColumns(artifact *domain.RankerArtifact) ([]string, error) {
	var columns []string
	if err := json.Unmarshal(artifact.FeatureNames, &columns); err != nil {
		return nil, fmt.Errorf("decode feature names: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("artifact %s has no feature names", artifact.ID)
	}
	return columns, nil
}
