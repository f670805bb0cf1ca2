package pipeline

import (
	"context"
	"fmt"
	"time"

	"offerRank/business/drift"
	"offerRank/business/evaluate"
	"offerRank/domain"
	"offerRank/pkg/config"
	"offerRank/pkg/logger"
	"offerRank/pkg/metrics"

	"gorm.io/datatypes"
)

const (
	StepFeatures   = "features"
	StepModel      = "model"
	StepCandidates = "candidates"
	StepScoring    = "scoring"
	StepDrift      = "drift"
	StepEvaluate   = "evaluate"
)

// ---- Step collaborators, one interface per pipeline stage ----

type FeatureBuilder interface {
	BuildCustomerFeatures(ctx context.Context, refDate time.Time) (int, error)
	BuildOfferFeatures(ctx context.Context, refDate time.Time) (int, error)
}

type ModelTrainer interface {
	Train(ctx context.Context, refDate time.Time) (*domain.RankerArtifact, bool, error)
}

type CandidateGenerator interface {
	Generate(ctx context.Context, runDate time.Time) (int, error)
}

type RecommendationScorer interface {
	Score(ctx context.Context, runDate time.Time, artifact *domain.RankerArtifact) (int, error)
}

type DriftChecker interface {
	Check(ctx context.Context, runDate, referenceDate time.Time) (*drift.Report, error)
}

type Evaluator interface {
	Run(ctx context.Context, runDate time.Time) (*evaluate.Metrics, error)
}

type ArtifactReader interface {
	Active(ctx context.Context) (*domain.RankerArtifact, error)
}

type RunRepository interface {
	AppendRun(ctx context.Context, run *domain.PipelineRun) error
}

type Runner struct {
	features   FeatureBuilder
	trainer    ModelTrainer
	candidates CandidateGenerator
	scorer     RecommendationScorer
	drift      DriftChecker
	evaluator  Evaluator
	artifacts  ArtifactReader
	runRepo    RunRepository
	cfg        config.PipelineConfig
}

func NewRunner(
	features FeatureBuilder,
	trainer ModelTrainer,
	candidates CandidateGenerator,
	scorer RecommendationScorer,
	driftChecker DriftChecker,
	evaluator Evaluator,
	artifacts ArtifactReader,
	runRepo RunRepository,
	cfg config.PipelineConfig,
) *Runner {
	return &Runner{
		features:   features,
		trainer:    trainer,
		candidates: candidates,
		scorer:     scorer,
		drift:      driftChecker,
		evaluator:  evaluator,
		artifacts:  artifacts,
		runRepo:    runRepo,
		cfg:        cfg,
	}
}

// stepResult is what one step hands back to the bookkeeping wrapper.
type stepResult struct {
	status   string
	metadata datatypes.JSONMap
}

// Run executes the whole batch for one run date. Steps run strictly in
// order; the first failure stops the sequence. Every step writes its own
// audit rows, so a re-run of the same date is safe end to end.
func (r *Runner) Run(ctx context.Context, runDate time.Time) error {
	logger.Info("pipeline starting", "run_date", runDate.Format("2006-01-02"))

	var artifact *domain.RankerArtifact

	steps := []struct {
		name string
		fn   func(context.Context) (stepResult, error)
	}{
		{StepFeatures, func(ctx context.Context) (stepResult, error) {
			return r.runFeatures(ctx, runDate)
		}},
		{StepModel, func(ctx context.Context) (stepResult, error) {
			res, a, err := r.runModel(ctx, runDate)
			artifact = a
			return res, err
		}},
		{StepCandidates, func(ctx context.Context) (stepResult, error) {
			return r.runCandidates(ctx, runDate)
		}},
		{StepScoring, func(ctx context.Context) (stepResult, error) {
			return r.runScoring(ctx, runDate, artifact)
		}},
		{StepDrift, func(ctx context.Context) (stepResult, error) {
			return r.runDrift(ctx, runDate, artifact)
		}},
		{StepEvaluate, func(ctx context.Context) (stepResult, error) {
			return r.runEvaluate(ctx, runDate)
		}},
	}

	for _, step := range steps {
		if err := r.runStep(ctx, runDate, step.name, step.fn); err != nil {
			return fmt.Errorf("step %s: %w", step.name, err)
		}
	}

	logger.Info("pipeline finished", "run_date", runDate.Format("2006-01-02"))
	return nil
}

// runStep brackets one step with audit rows and timing. A failed step gets
// a failed row before the error propagates.
func (r *Runner) runStep(ctx context.Context, runDate time.Time, name string, fn func(context.Context) (stepResult, error)) error {
	if err := r.record(ctx, runDate, name, domain.StepStatusStarted, 0, nil); err != nil {
		return err
	}

	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.PipelineStepDuration.WithLabelValues(name, domain.StepStatusFailed).Observe(elapsed)
		logger.Error("pipeline step failed", "step", name, "error", err)
		if recErr := r.record(ctx, runDate, name, domain.StepStatusFailed, elapsed, datatypes.JSONMap{"error": err.Error()}); recErr != nil {
			logger.Error("failed to record step failure", "step", name, "error", recErr)
		}
		return err
	}

	metrics.PipelineStepDuration.WithLabelValues(name, res.status).Observe(elapsed)
	return r.record(ctx, runDate, name, res.status, elapsed, res.metadata)
}

func (r *Runner) record(ctx context.Context, runDate time.Time, step, status string, duration float64, meta datatypes.JSONMap) error {
	run := &domain.PipelineRun{
		RunDate:         runDate,
		Step:            step,
		Status:          status,
		DurationSeconds: duration,
		Metadata:        meta,
	}
	if err := r.runRepo.AppendRun(ctx, run); err != nil {
		return fmt.Errorf("record %s/%s: %w", step, status, err)
	}
	return nil
}

func (r *Runner) runFeatures(ctx context.Context, runDate time.Time) (stepResult, error) {
	custRows, err := r.features.BuildCustomerFeatures(ctx, runDate)
	if err != nil {
		return stepResult{}, err
	}
	offerRows, err := r.features.BuildOfferFeatures(ctx, runDate)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{
		status: domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{
			"customer_rows": custRows,
			"offer_rows":    offerRows,
		},
	}, nil
}

// runModel retrains on the weekly retrain day or when no artifact exists,
// otherwise loads the active artifact. Too few positives is a skip, not a
// failure, as long as a previous artifact can carry the run.
func (r *Runner) runModel(ctx context.Context, runDate time.Time) (stepResult, *domain.RankerArtifact, error) {
	active, err := r.artifacts.Active(ctx)
	if err != nil {
		return stepResult{}, nil, fmt.Errorf("load active artifact: %w", err)
	}

	retrain := active == nil || int(runDate.Weekday()) == r.cfg.RetrainWeekday
	if !retrain {
		return stepResult{
			status: domain.StepStatusCompleted,
			metadata: datatypes.JSONMap{
				"retrained":   false,
				"artifact_id": active.ID,
				"model":       active.ModelName,
			},
		}, active, nil
	}

	artifact, trained, err := r.trainer.Train(ctx, runDate)
	if err != nil {
		return stepResult{}, nil, err
	}
	if !trained {
		if active == nil {
			return stepResult{}, nil, fmt.Errorf("no previous artifact and too few positives to train")
		}
		return stepResult{
			status: domain.StepStatusSkipped,
			metadata: datatypes.JSONMap{
				"reason":      "insufficient positives",
				"artifact_id": active.ID,
			},
		}, active, nil
	}

	return stepResult{
		status: domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{
			"retrained":      true,
			"artifact_id":    artifact.ID,
			"model":          artifact.ModelName,
			"validation_auc": artifact.ValidationAUC,
		},
	}, artifact, nil
}

func (r *Runner) runCandidates(ctx context.Context, runDate time.Time) (stepResult, error) {
	entries, err := r.candidates.Generate(ctx, runDate)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{
		status:   domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{"pool_entries": entries},
	}, nil
}

func (r *Runner) runScoring(ctx context.Context, runDate time.Time, artifact *domain.RankerArtifact) (stepResult, error) {
	rows, err := r.scorer.Score(ctx, runDate, artifact)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{
		status:   domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{"recommendations": rows},
	}, nil
}

func (r *Runner) runDrift(ctx context.Context, runDate time.Time, artifact *domain.RankerArtifact) (stepResult, error) {
	if artifact == nil {
		return stepResult{
			status:   domain.StepStatusSkipped,
			metadata: datatypes.JSONMap{"reason": "no artifact for reference snapshot"},
		}, nil
	}
	report, err := r.drift.Check(ctx, runDate, artifact.TrainDate)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{
		status: domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{
			"alerts":            report.AlertCount,
			"retrain_suggested": report.RetrainSuggested,
		},
	}, nil
}

func (r *Runner) runEvaluate(ctx context.Context, runDate time.Time) (stepResult, error) {
	m, err := r.evaluator.Run(ctx, runDate)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{
		status: domain.StepStatusCompleted,
		metadata: datatypes.JSONMap{
			"window":      m.Window,
			"customers":   m.CustomersEvaluated,
			"precision":   m.PrecisionAtN,
			"recall":      m.RecallAtN,
			"mrr":         m.MRR,
			"ndcg":        m.NDCG,
			"ndcg_lift":   m.NDCGLift,
			"baseline":    m.BaselineNDCG,
			"window_hits": m.Redemptions,
		},
	}, nil
}
