package domain

import (
	"time"

	"gorm.io/datatypes"
)

// RankerArtifact is the persisted, versioned model. Only the training step
// writes rows; scoring reads the single active one. Params holds the
// serialized model (weights or trees) as JSON.
type RankerArtifact struct {
	ID            string         `gorm:"primaryKey;column:id"` // uuid
	ModelName     string         `gorm:"column:model_name;not null"`
	TrainDate     time.Time      `gorm:"column:train_date;not null"`
	ValidationAUC float64        `gorm:"column:validation_auc"`
	FeatureNames  datatypes.JSON `gorm:"column:feature_names;type:jsonb"`
	Params        datatypes.JSON `gorm:"column:params;type:jsonb"`
	Active        bool           `gorm:"column:active;not null;default:false;index"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (RankerArtifact) TableName() string {
	return "ranker_artifacts"
}
