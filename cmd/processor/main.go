package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

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
	logger.Info("Starting NPC queue processor")

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

	repo := db.NewRepository(database.DB)
	gen := generator.New(repo, provider, uploader, cfg.Processor.ProviderCallDelay, nil, nil)
	proc := processor.New(repo, gen, &cfg.Processor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	interval := time.Duration(cfg.Processor.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Processor running", zap.Duration("interval", interval))

	// Passes run back to back on the ticker; a pass always finishes before
	// the next one starts, so passes never overlap within this process.
	runPass(ctx, proc, logger)
	for {
		select {
		case <-quit:
			logger.Info("Shutting down processor...")
			cancel()
			logger.Info("Processor exited")
			return
		case <-ticker.C:
			runPass(ctx, proc, logger)
		}
	}
}

func runPass(ctx context.Context, proc *processor.Processor, logger *zap.Logger) {
	result, err := proc.Run(ctx)
	if err != nil {
		logger.Error("Processing pass failed", zap.Error(err))
		return
	}
	logger.Info("Processing pass completed",
		zap.Int("published", result.PostsPublished),
		zap.Int("failed", result.PostsFailed),
		zap.Int("likes", result.LikesGiven),
		zap.Int("comments", result.CommentsGiven),
		zap.Int("refilled", result.QueueRefill.NPCRefilled))
}
