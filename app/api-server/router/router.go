package router

import (
	"offerRank/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupRecommendationRoutes(api *echo.Group, handler *rest.RecommendationHandler) {
	reco := api.Group("/recommendations")
	reco.GET("", handler.Get)
}

func SetupPipelineRoutes(api *echo.Group, handler *rest.PipelineHandler) {
	api.GET("/runs", handler.GetRuns)
	api.GET("/drift", handler.GetDrift)
	api.GET("/metrics/evaluation", handler.GetEvaluation)
}
