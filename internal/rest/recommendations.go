package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"offerRank/domain"
	"offerRank/pkg/logger"
	"offerRank/pkg/metrics"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const (
	dateLayout             = "2006-01-02"
	recommendationCacheTTL = 5 * time.Minute
)

type (
	RecommendationHandler struct {
		validate *validator.Validate
		recs     RecommendationSource
		cache    ResponseCache
	}

	RecommendationSource interface {
		RecommendationsForCustomer(ctx context.Context, customerID uint64, runDate *time.Time) ([]domain.Recommendation, error)
	}

	// ResponseCache may be nil, in which case every request hits Postgres.
	ResponseCache interface {
		GetJSON(ctx context.Context, key string, dst any) (bool, error)
		SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	}

	RecommendationsQuery struct {
		CustomerID uint64 `query:"customer_id" validate:"required"`
		RunDate    string `query:"run_date" validate:"omitempty,datetime=2006-01-02"`
	}

	RecommendationItem struct {
		OfferID uint64    `json:"offer_id"`
		Score   float64   `json:"score"`
		Rank    int       `json:"rank"`
		RunDate time.Time `json:"run_date"`
	}

	RecommendationsResponse struct {
		CustomerID uint64               `json:"customer_id"`
		Items      []RecommendationItem `json:"items"`
	}
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

func NewRecommendationHandler(recs RecommendationSource, cache ResponseCache) *RecommendationHandler {
	return &RecommendationHandler{
		validate: validator.New(),
		recs:     recs,
		cache:    cache,
	}
}

// GET /api/v1/recommendations?customer_id=42&run_date=2026-08-31
// A customer with no precomputed ranking gets an empty item list, not an
// error: new customers are an expected case, not a failure.
func (h *RecommendationHandler) Get(c echo.Context) error {
	var q RecommendationsQuery
	if err := c.Bind(&q); err != nil {
		metrics.RecommendRequests.WithLabelValues("bad_request").Inc()
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&q); err != nil {
		metrics.RecommendRequests.WithLabelValues("bad_request").Inc()
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx := c.Request().Context()

	var runDate *time.Time
	if q.RunDate != "" {
		d, err := time.Parse(dateLayout, q.RunDate)
		if err != nil {
			metrics.RecommendRequests.WithLabelValues("bad_request").Inc()
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid run_date"})
		}
		runDate = &d
	}
	cacheKey := cacheKeyFor(q.CustomerID, q.RunDate)

	if h.cache != nil {
		var cached RecommendationsResponse
		hit, err := h.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("recommendation cache read failed", "error", err)
		}
		if hit {
			metrics.RecommendCacheHits.Inc()
			metrics.RecommendRequests.WithLabelValues("ok").Inc()
			return c.JSON(http.StatusOK, fres.Response.StatusOK(cached))
		}
	}

	recs, err := h.recs.RecommendationsForCustomer(ctx, q.CustomerID, runDate)
	if err != nil {
		logger.Error("failed to load recommendations", "customer_id", q.CustomerID, "error", err)
		metrics.RecommendRequests.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to load recommendations"})
	}

	resp := RecommendationsResponse{
		CustomerID: q.CustomerID,
		Items:      make([]RecommendationItem, 0, len(recs)),
	}
	for _, r := range recs {
		resp.Items = append(resp.Items, RecommendationItem{
			OfferID: r.OfferID,
			Score:   r.Score,
			Rank:    r.Rank,
			RunDate: r.RunDate,
		})
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, cacheKey, resp, recommendationCacheTTL); err != nil {
			logger.Warn("recommendation cache write failed", "error", err)
		}
	}

	metrics.RecommendRequests.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, fres.Response.StatusOK(resp))
}

func cacheKeyFor(customerID uint64, runDate string) string {
	if runDate == "" {
		runDate = "latest"
	}
	return "reco:" + runDate + ":" + strconv.FormatUint(customerID, 10)
}
