// Package main provides the background worker entry point. The worker
// drains the history-fetch queue and runs scheduled watchlist refreshes.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockso/blockso/internal/adapter"
	"github.com/blockso/blockso/internal/config"
	"github.com/blockso/blockso/internal/feed"
	"github.com/blockso/blockso/internal/importer"
	"github.com/blockso/blockso/internal/job"
	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/storage"
	"github.com/blockso/blockso/internal/types"
)

func main() {
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redisStore, err := storage.NewRedisStore(&cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisStore.Close()

	// Initialize repositories and the import pipeline
	profileRepo := storage.NewProfileRepository(postgres)
	txRepo := storage.NewTransactionRepository(postgres)
	postRepo := storage.NewPostRepository(postgres)
	notificationRepo := storage.NewNotificationRepository(postgres)

	deriver := feed.NewDeriver(profileRepo, postRepo, notificationRepo)
	covalent := adapter.NewCovalentClient(&cfg.Covalent, int(types.ChainEthereum))
	history := importer.NewHistory(covalent, txRepo, deriver, cfg.Covalent.MaxPages)

	queue := job.NewQueue(redisStore)
	worker := job.NewWorker(queue, history, profileRepo, cfg.Worker.Concurrency, 1000)
	worker.SetPollInterval(cfg.Worker.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start worker")
	}
	logger.WithField("concurrency", cfg.Worker.Concurrency).Info("Worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	if err := worker.Stop(); err != nil {
		logger.WithError(err).Error("Worker stop failed")
	}
	logger.Info("Worker exited")
}
