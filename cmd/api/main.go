package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-backup/internal/aggregator"
	"github.com/kurihiro0119/github-org-backup/internal/api"
	"github.com/kurihiro0119/github-org-backup/internal/config"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
	"github.com/kurihiro0119/github-org-backup/internal/storage"
	"github.com/kurihiro0119/github-org-backup/internal/storage/postgres"
	"github.com/kurihiro0119/github-org-backup/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to initialize PostgreSQL storage", zap.Error(err))
		}
	case "none":
		logger.Warn("STORAGE_TYPE is none, the API will serve an empty history")
		store = storage.Nop{}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to initialize SQLite storage", zap.Error(err))
		}
	}
	defer store.Close()

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRoutes(api.NewHandler(aggregator.NewAggregator(store)), logger)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server", zap.String("addr", addr), zap.String("storage", cfg.StorageType))

	if err := router.Run(addr); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		os.Exit(1)
	}
}
