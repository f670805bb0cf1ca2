package rest

import (
	"context"
	"net/http"
	"time"

	"offerRank/domain"
	"offerRank/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	PipelineHandler struct {
		validate *validator.Validate
		runs     RunSource
		drift    DriftSource
	}

	RunSource interface {
		RunsFor(ctx context.Context, runDate *time.Time, limit int) ([]domain.PipelineRun, error)
		LatestStepRun(ctx context.Context, step, status string, runDate *time.Time) (*domain.PipelineRun, error)
	}

	DriftSource interface {
		DriftFor(ctx context.Context, runDate *time.Time, limit int) ([]domain.DriftLogEntry, error)
	}

	RunsQuery struct {
		RunDate string `query:"run_date" validate:"omitempty,datetime=2006-01-02"`
		Limit   int    `query:"limit" validate:"omitempty,min=1,max=500"`
	}
)

func NewPipelineHandler(runs RunSource, drift DriftSource) *PipelineHandler {
	return &PipelineHandler{
		validate: validator.New(),
		runs:     runs,
		drift:    drift,
	}
}

func (h *PipelineHandler) bindRunsQuery(c echo.Context) (*time.Time, int, error) {
	var q RunsQuery
	if err := c.Bind(&q); err != nil {
		return nil, 0, err
	}
	if err := h.validate.Struct(&q); err != nil {
		return nil, 0, err
	}

	var runDate *time.Time
	if q.RunDate != "" {
		d, err := time.Parse(dateLayout, q.RunDate)
		if err != nil {
			return nil, 0, err
		}
		runDate = &d
	}
	return runDate, q.Limit, nil
}

// GET /api/v1/runs?run_date=2026-08-31&limit=50
func (h *PipelineHandler) GetRuns(c echo.Context) error {
	runDate, limit, err := h.bindRunsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	runs, err := h.runs.RunsFor(c.Request().Context(), runDate, limit)
	if err != nil {
		logger.Error("failed to load pipeline runs", "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to load pipeline runs"})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(runs))
}

// GET /api/v1/drift?run_date=2026-08-31
func (h *PipelineHandler) GetDrift(c echo.Context) error {
	runDate, limit, err := h.bindRunsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	entries, err := h.drift.DriftFor(c.Request().Context(), runDate, limit)
	if err != nil {
		logger.Error("failed to load drift log", "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to load drift log"})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(entries))
}

// GET /api/v1/metrics/evaluation?run_date=2026-08-31
// Evaluation results live in the metadata of the evaluate step's audit row.
func (h *PipelineHandler) GetEvaluation(c echo.Context) error {
	runDate, _, err := h.bindRunsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	run, err := h.runs.LatestStepRun(c.Request().Context(), "evaluate", domain.StepStatusCompleted, runDate)
	if err != nil {
		logger.Error("failed to load evaluation", "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to load evaluation"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "no evaluation found"})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(run))
}

// GET /health
func (h *PipelineHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
