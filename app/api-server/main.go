package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerRank/app/api-server/router"
	psqlRepo "offerRank/internal/repository/postgres"
	redisRepo "offerRank/internal/repository/redis"
	"offerRank/internal/rest"
	"offerRank/pkg/config"
	"offerRank/pkg/database"
	redisdb "offerRank/pkg/database/redis"
	"offerRank/pkg/logger"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting offer ranking API", "version", cfg.App.Version)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	// The cache is optional: without Redis the API just reads Postgres on
	// every request.
	var cache rest.ResponseCache
	redisClient, err := redisdb.NewClient(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, serving without cache", "error", err)
	} else {
		cache = redisRepo.NewCacheRepository(redisClient)
		defer redisClient.Close()
	}

	// Init repo
	recRepo := psqlRepo.NewRecommendationRepository(db)
	runRepo := psqlRepo.NewRunRepository(db)
	driftRepo := psqlRepo.NewDriftRepository(db)

	// Init handler
	recHandler := rest.NewRecommendationHandler(recRepo, cache)
	pipelineHandler := rest.NewPipelineHandler(runRepo, driftRepo)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(echomiddleware.Recover())

	e.GET("/health", pipelineHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupRecommendationRoutes(api, recHandler)
	router.SetupPipelineRoutes(api, pipelineHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
