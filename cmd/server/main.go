// Package main provides the API server entry point for the blockso backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockso/blockso/internal/adapter"
	"github.com/blockso/blockso/internal/api"
	"github.com/blockso/blockso/internal/config"
	"github.com/blockso/blockso/internal/feed"
	"github.com/blockso/blockso/internal/importer"
	"github.com/blockso/blockso/internal/job"
	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/storage"
	"github.com/blockso/blockso/internal/types"
)

func main() {
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

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

	logger.Info("Database connections established")

	// Initialize repositories
	profileRepo := storage.NewProfileRepository(postgres)
	txRepo := storage.NewTransactionRepository(postgres)
	postRepo := storage.NewPostRepository(postgres)
	notificationRepo := storage.NewNotificationRepository(postgres)

	// Initialize the activity pipeline
	chainClient, err := adapter.NewEthereumChainClient(cfg.Alchemy.RPCURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to RPC endpoint")
	}

	deriver := feed.NewDeriver(profileRepo, postRepo, notificationRepo)
	activity := importer.NewActivity(txRepo, chainClient, deriver)

	// Initialize the job queue and fetch gate
	queue := job.NewQueue(redisStore)
	gate := job.NewFetchGate(profileRepo, queue)

	alchemyClient := adapter.NewAlchemyClient(&cfg.Alchemy)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  20,
		HistoryLimit:    1000,
	}

	server := api.NewServer(
		serverConfig,
		profileRepo,
		postRepo,
		notificationRepo,
		activity,
		gate,
		alchemyClient,
		cfg.Alchemy.SigningKey,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"chain": types.ChainEthereum,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
