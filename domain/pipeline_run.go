package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StepStatusStarted   = "started"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// PipelineRun is the append-only audit trail of orchestration: one row per
// step per status transition.
type PipelineRun struct {
	ID              uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	RunDate         time.Time         `gorm:"column:run_date;not null;index" json:"run_date"`
	Step            string            `gorm:"column:step;not null" json:"step"`
	Status          string            `gorm:"column:status;not null" json:"status"`
	DurationSeconds float64           `gorm:"column:duration_seconds" json:"duration_seconds"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
