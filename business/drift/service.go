package drift

import (
	"context"
	"fmt"
	"time"

	"offerRank/business/features"
	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
	"offerRank/pkg/metrics"
)

type FeatureSource interface {
	CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error)
}

type LogRepository interface {
	AppendDriftLog(ctx context.Context, entries []domain.DriftLogEntry) error
}

type Service struct {
	featureRepo FeatureSource
	logRepo     LogRepository
	cfg         config.PipelineConfig
}

func NewService(featureRepo FeatureSource, logRepo LogRepository, cfg config.PipelineConfig) *Service {
	return &Service{featureRepo: featureRepo, logRepo: logRepo, cfg: cfg}
}

// Report is one run's drift measurement across all monitored features.
type Report struct {
	Entries          []domain.DriftLogEntry
	AlertCount       int
	RetrainSuggested bool
}

// Check computes PSI for every monitored customer feature between the
// reference snapshot (the active model's train date) and the current run's
// snapshot, appends the results to the drift log, and flags a retrain when
// enough features alert.
func (s *Service) Check(ctx context.Context, runDate, referenceDate time.Time) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	refRows, err := s.featureRepo.CustomerFeaturesAt(ctx, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("load reference features: %w", err)
	}
	curRows, err := s.featureRepo.CustomerFeaturesAt(ctx, runDate)
	if err != nil {
		return nil, fmt.Errorf("load current features: %w", err)
	}
	if len(refRows) == 0 || len(curRows) == 0 {
		logger.Warn("drift check skipped, missing feature snapshot",
			"reference_rows", len(refRows),
			"current_rows", len(curRows),
		)
		return &Report{}, nil
	}

	report := &Report{}
	for _, name := range features.DriftColumns {
		ref := columnValues(name, refRows)
		cur := columnValues(name, curRows)

		psi := PSI(ref, cur, s.cfg.PSIBins)
		severity := s.severity(psi)
		if severity == domain.DriftSeverityAlert {
			report.AlertCount++
		}

		metrics.DriftFeatureSeverity.WithLabelValues(name).Set(psi)
		report.Entries = append(report.Entries, domain.DriftLogEntry{
			RunDate:     runDate,
			FeatureName: name,
			PSI:         psi,
			Severity:    severity,
		})
	}

	report.RetrainSuggested = report.AlertCount >= s.cfg.DriftMinAlerts

	if err := s.logRepo.AppendDriftLog(ctx, report.Entries); err != nil {
		return nil, fmt.Errorf("append drift log: %w", err)
	}

	logger.Info("drift check done",
		"run_date", runDate.Format("2006-01-02"),
		"alerts", report.AlertCount,
		"retrain_suggested", report.RetrainSuggested,
	)
	return report, nil
}

func (s *Service) severity(psi float64) string {
	switch {
	case psi < s.cfg.PSIWarnThreshold:
		return domain.DriftSeverityOK
	case psi < s.cfg.PSIAlertThreshold:
		return domain.DriftSeverityWarn
	default:
		return domain.DriftSeverityAlert
	}
}

func columnValues(name string, rows []domain.CustomerFeatures) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := features.CustomerValue(name, r); ok {
			out = append(out, v)
		}
	}
	return out
}
