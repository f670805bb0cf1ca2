package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerRank/business/candidates"
	"offerRank/business/drift"
	"offerRank/business/evaluate"
	"offerRank/business/features"
	"offerRank/business/pipeline"
	"offerRank/business/ranker"
	psqlRepo "offerRank/internal/repository/postgres"
	"offerRank/pkg/config"
	"offerRank/pkg/database"
	"offerRank/pkg/logger"
)

func main() {
	dateFlag := flag.String("date", "", "run date as YYYY-MM-DD (default: today)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)

	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateFlag != "" {
		runDate, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			logger.Fatal("Invalid -date value", "date", *dateFlag, "error", err)
		}
	}

	logger.Info("Starting offer ranking pipeline",
		"version", cfg.App.Version,
		"run_date", runDate.Format("2006-01-02"),
	)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Init repo
	historyRepo := psqlRepo.NewHistoryRepository(db)
	featureRepo := psqlRepo.NewFeatureRepository(db)
	poolRepo := psqlRepo.NewPoolRepository(db)
	recRepo := psqlRepo.NewRecommendationRepository(db)
	artifactRepo := psqlRepo.NewArtifactRepository(db)
	driftRepo := psqlRepo.NewDriftRepository(db)
	runRepo := psqlRepo.NewRunRepository(db)

	// Init service
	featureService := features.NewService(historyRepo, featureRepo, cfg.Pipeline)
	candidateService := candidates.NewService(historyRepo, featureRepo, poolRepo, cfg.Pipeline)
	trainer := ranker.NewTrainer(historyRepo, featureRepo, featureService, artifactRepo, cfg.Pipeline)
	scorer := ranker.NewScorer(poolRepo, featureRepo, featureService, recRepo, cfg.Pipeline)
	driftService := drift.NewService(featureRepo, driftRepo, cfg.Pipeline)
	evalService := evaluate.NewService(recRepo, historyRepo, poolRepo, cfg.Pipeline)

	runner := pipeline.NewRunner(
		featureService,
		trainer,
		candidateService,
		scorer,
		driftService,
		evalService,
		artifactRepo,
		runRepo,
		cfg.Pipeline,
	)

	// A second signal kills the process; the first cancels the run so the
	// current step can fail cleanly and be recorded.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runner.Run(ctx, runDate); err != nil {
		logger.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}
}
