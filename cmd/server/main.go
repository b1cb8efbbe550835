package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/api"
	"github.com/openpnl/bitget-orders-go/internal/api/handlers"
	"github.com/openpnl/bitget-orders-go/internal/cache"
	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/logging"
	"github.com/openpnl/bitget-orders-go/internal/services"
	"github.com/openpnl/bitget-orders-go/internal/storage"
	"github.com/openpnl/bitget-orders-go/internal/telemetry"
	"github.com/openpnl/bitget-orders-go/internal/workflow"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

var version = "dev"

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"version":     version,
	}).Info("Starting bitget-orders-api")

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Environment)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("Telemetry shutdown failed")
				}
			}()
		}
	}

	// Object store backend for the pipeline's intermediate and final blobs.
	var store storage.ObjectStore
	switch cfg.Storage.Backend {
	case "redis":
		client, err := storage.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		store = storage.NewRedisStore(client)
	default:
		s3Store, err := storage.NewS3Store(ctx, &cfg.Storage)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize S3 storage")
		}
		store = s3Store
	}

	exchange := bitget.NewClient(&cfg.Exchange)

	// Symbol cache is optional: without Redis the coordinator hits the
	// exchange on every symbol listing.
	var symbolCache *cache.RedisSymbolCache
	if cfg.Storage.Backend == "redis" || cfg.Redis.Host != "" {
		if client, err := storage.NewRedisClient(ctx, &cfg.Redis); err != nil {
			logger.WithError(err).Warn("Symbol cache disabled, Redis unavailable")
		} else {
			defer client.Close()
			ttl, parseErr := time.ParseDuration(cfg.Discovery.CacheTTL)
			if parseErr != nil {
				ttl = time.Hour
			}
			symbolCache = cache.NewRedisSymbolCache(client, ttl, logger)
		}
	}

	collector := services.NewSymbolCollector(exchange, store, cfg.Collector, cfg.Storage.PartialPrefix, logger)
	aggregator := services.NewResultAggregator(store, cfg.Aggregator, &cfg.Storage, logger)
	notifier := services.NewExtractionNotifier(cfg.Telegram, logger)
	analytics := services.NewAnalyticsService(store, cfg.Analytics, &cfg.Storage, logger)

	// Workflow engine: a managed state machine when configured, otherwise
	// the in-process runner executes the same stages locally.
	var engine workflow.Engine
	if cfg.Workflow.Backend == "stepfunctions" {
		sfnEngine, err := workflow.NewSFNEngine(ctx, &cfg.Workflow)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize workflow engine")
		}
		engine = sfnEngine
	} else {
		engine = services.NewPipelineRunner(collector, aggregator, notifier, cfg.Collector, logger)
	}

	coordinator := services.NewCoordinatorService(exchange, engine, symbolCache, cfg.Discovery, cfg.Exchange.ProductType, logger)

	presignTTL, err := time.ParseDuration(cfg.Storage.PresignTTL)
	if err != nil {
		presignTTL = time.Hour
	}

	healthHandler := handlers.NewHealthHandler(exchange, store, cfg.Exchange.ProductType, version)
	extractionHandler := handlers.NewExtractionHandler(coordinator, collector, engine)
	resultsHandler := handlers.NewResultsHandler(store, analytics, cfg.Storage.ResultsPrefix, presignTTL, logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, healthHandler, extractionHandler, resultsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
