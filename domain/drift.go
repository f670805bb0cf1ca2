package domain

import (
	"time"
)

const (
	DriftSeverityOK    = "ok"
	DriftSeverityWarn  = "warn"
	DriftSeverityAlert = "alert"
)

// DriftLogEntry is an append-only record of one PSI measurement.
type DriftLogEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RunDate     time.Time `gorm:"column:run_date;not null;index" json:"run_date"`
	FeatureName string    `gorm:"column:feature_name;not null" json:"feature_name"`
	PSI         float64   `gorm:"column:psi;not null" json:"psi"`
	Severity    string    `gorm:"column:severity;not null" json:"severity"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DriftLogEntry) TableName() string {
	return "drift_log"
}
