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
	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/internal/api"
	"github.com/pulsefeed/npcmind/internal/cache"
	"github.com/pulsefeed/npcmind/internal/coverage"
	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/genai"
	"github.com/pulsefeed/npcmind/internal/generator"
	"github.com/pulsefeed/npcmind/internal/processor"
	"github.com/pulsefeed/npcmind/internal/storage"
	"github.com/pulsefeed/npcmind/pkg/config"
	"github.com/pulsefeed/npcmind/pkg/logging"
	"github.com/pulsefeed/npcmind/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting NPC scheduler API server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Initialize database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Initialize Redis cache (optional)
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	// Initialize generation provider
	provider, err := genai.New(&cfg.Provider)
	if err != nil {
		logger.Fatal("Failed to initialize generation provider", zap.Error(err))
	}

	// Initialize object storage (optional)
	var uploader storage.Uploader
	if cfg.Storage.Enabled {
		gcs, err := storage.NewGCSUploader(context.Background(), &cfg.Storage)
		if err != nil {
			logger.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		defer gcs.Close()
		uploader = gcs
	}

	// Wire the core components
	repo := db.NewRepository(database.DB)
	gen := generator.New(repo, provider, uploader, cfg.Processor.ProviderCallDelay, nil, nil)
	proc := processor.New(repo, gen, &cfg.Processor, nil)
	reporter := coverage.New(repo, redisCache, nil)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api.NewRouter(repo, redisCache, gen, proc, reporter, &cfg.Processor).SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
