package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/api"
	"github.com/2cloudlabs/yolo-transcript/internal/assemblyai"
	"github.com/2cloudlabs/yolo-transcript/internal/config"
	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/drive"
	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
	"github.com/2cloudlabs/yolo-transcript/internal/reconcile"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres connection string")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("yolo-transcript starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Redis (optional balance cache)
	var rdb *redis.Client
	var cache ledger.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		cache = ledger.NewRedisCache(rdb, log.With().Str("component", "cache").Logger())
		log.Info().Msg("redis balance cache enabled")
	}

	// Credit ledger
	ledgerLog := log.With().Str("component", "ledger").Logger()
	led := ledger.New(db, cache, ledgerLog)

	// Transcription vendor
	vendor := assemblyai.NewClient("", cfg.AssemblyAIKey, cfg.AssemblyAITimeout)

	// Reconciler
	recLog := log.With().Str("component", "reconcile").Logger()
	rec := reconcile.New(db, vendor, led, cfg.CheckPollInterval, cfg.CheckBatchSize, recLog)
	rec.Start()
	defer rec.Stop()

	// Drive integration (optional)
	var driveClient *drive.Client
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		driveLog := log.With().Str("component", "drive").Logger()
		driveClient = drive.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, db, drive.Endpoints{}, driveLog)
	} else {
		log.Info().Msg("google drive integration not configured")
	}

	// Scrape-time gauges
	prometheus.MustRegister(metrics.NewCollector(db.Pool, db))

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		DB:         db,
		Redis:      rdb,
		Vendor:     vendor,
		Ledger:     led,
		Reconciler: rec,
		Drive:      driveClient,
		Version:    version,
		StartTime:  startTime,
	}, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("yolo-transcript stopped")
}
