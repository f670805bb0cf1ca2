package drift

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"offerRank/business/features"
	"offerRank/domain"
	"offerRank/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	runDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	trainDt = time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
)

func TestPSI_IdenticalDistributionsAreZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float64, 1000)
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	assert.Equal(t, 0.0, PSI(values, values, 10))
}

func TestPSI_ShiftIsPositiveAndGrows(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ref := make([]float64, 2000)
	small := make([]float64, 2000)
	large := make([]float64, 2000)
	for i := range ref {
		ref[i] = rng.NormFloat64()
		small[i] = rng.NormFloat64() + 0.1
		large[i] = rng.NormFloat64() + 2.0
	}

	smallPSI := PSI(ref, small, 10)
	largePSI := PSI(ref, large, 10)

	assert.Greater(t, smallPSI, 0.0)
	assert.Greater(t, largePSI, smallPSI)
	assert.Greater(t, largePSI, 0.25)
}

func TestPSI_ConstantFeature(t *testing.T) {
	ref := []float64{1, 1, 1, 1, 1}
	assert.Equal(t, 0.0, PSI(ref, ref, 10))
	// a constant that moved lands entirely in a different bin
	assert.Greater(t, PSI(ref, []float64{5, 5, 5, 5, 5}, 10), 0.0)
}

func TestPSI_Empty(t *testing.T) {
	assert.Zero(t, PSI(nil, []float64{1}, 10))
	assert.Zero(t, PSI([]float64{1}, nil, 10))
}

// fakeSnapshots serves a different feature snapshot per date.
type fakeSnapshots struct {
	byDate map[time.Time][]domain.CustomerFeatures
}

func (f *fakeSnapshots) CustomerFeaturesAt(ctx context.Context, refDate time.Time) ([]domain.CustomerFeatures, error) {
	return f.byDate[refDate], nil
}

type fakeDriftLog struct {
	entries []domain.DriftLogEntry
}

func (f *fakeDriftLog) AppendDriftLog(ctx context.Context, entries []domain.DriftLogEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func snapshot(refDate time.Time, shift float64, n int, seed int64) []domain.CustomerFeatures {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]domain.CustomerFeatures, n)
	for i := range rows {
		rows[i] = domain.CustomerFeatures{
			CustomerID:         uint64(i + 1),
			ReferenceDate:      refDate,
			RecencyDays:        rng.Float64()*30 + shift,
			Frequency:          rng.Float64()*10 + shift,
			Monetary:           rng.Float64()*1000 + shift*100,
			PromoAffinity:      rng.Float64(),
			AvgBasketSize:      rng.Float64()*20 + shift,
			AvgDiscountDepth:   rng.Float64() * 0.5,
			Tier2PurchaseRatio: rng.Float64() * 0.3,
			Tier3PurchaseRatio: rng.Float64() * 0.2,
		}
	}
	return rows
}

func TestCheck_StableSnapshotsAllOK(t *testing.T) {
	rows := snapshot(trainDt, 0, 500, 3)
	current := make([]domain.CustomerFeatures, len(rows))
	copy(current, rows)

	snaps := &fakeSnapshots{byDate: map[time.Time][]domain.CustomerFeatures{
		trainDt: rows,
		runDate: current,
	}}
	logRepo := &fakeDriftLog{}
	svc := NewService(snaps, logRepo, config.DefaultPipelineConfig())

	report, err := svc.Check(context.Background(), runDate, trainDt)
	require.NoError(t, err)
	assert.Zero(t, report.AlertCount)
	assert.False(t, report.RetrainSuggested)
	require.Len(t, report.Entries, len(features.DriftColumns))
	for _, e := range report.Entries {
		assert.Equal(t, domain.DriftSeverityOK, e.Severity)
		assert.Zero(t, e.PSI)
		assert.Equal(t, runDate, e.RunDate)
	}
	assert.Len(t, logRepo.entries, len(features.DriftColumns))
}

func TestCheck_ShiftedSnapshotSuggestsRetrain(t *testing.T) {
	snaps := &fakeSnapshots{byDate: map[time.Time][]domain.CustomerFeatures{
		trainDt: snapshot(trainDt, 0, 1000, 4),
		runDate: snapshot(runDate, 50, 1000, 5),
	}}
	logRepo := &fakeDriftLog{}
	svc := NewService(snaps, logRepo, config.DefaultPipelineConfig())

	report, err := svc.Check(context.Background(), runDate, trainDt)
	require.NoError(t, err)

	// recency, frequency, monetary, and basket size all moved far past the
	// alert threshold
	assert.GreaterOrEqual(t, report.AlertCount, 3)
	assert.True(t, report.RetrainSuggested)
}

func TestCheck_MissingSnapshotSkips(t *testing.T) {
	snaps := &fakeSnapshots{byDate: map[time.Time][]domain.CustomerFeatures{
		runDate: snapshot(runDate, 0, 10, 6),
	}}
	logRepo := &fakeDriftLog{}
	svc := NewService(snaps, logRepo, config.DefaultPipelineConfig())

	report, err := svc.Check(context.Background(), runDate, trainDt)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Empty(t, logRepo.entries)
}

func TestSeverityThresholds(t *testing.T) {
	svc := NewService(nil, nil, config.DefaultPipelineConfig())
	assert.Equal(t, domain.DriftSeverityOK, svc.severity(0.05))
	assert.Equal(t, domain.DriftSeverityWarn, svc.severity(0.10))
	assert.Equal(t, domain.DriftSeverityWarn, svc.severity(0.20))
	assert.Equal(t, domain.DriftSeverityAlert, svc.severity(0.25))
	assert.Equal(t, domain.DriftSeverityAlert, svc.severity(0.80))
}
