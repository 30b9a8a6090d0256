package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/creaturederby/derby/internal/api/http"
	"github.com/creaturederby/derby/internal/application/creature"
	"github.com/creaturederby/derby/internal/application/executor"
	"github.com/creaturederby/derby/internal/application/payment"
	"github.com/creaturederby/derby/internal/application/race"
	"github.com/creaturederby/derby/internal/application/scheduler"
	"github.com/creaturederby/derby/internal/application/season"
	"github.com/creaturederby/derby/internal/config"
	"github.com/creaturederby/derby/internal/infrastructure/archive"
	"github.com/creaturederby/derby/internal/infrastructure/explorer"
	"github.com/creaturederby/derby/internal/infrastructure/keystore"
	"github.com/creaturederby/derby/internal/infrastructure/postgres"
	"github.com/creaturederby/derby/internal/infrastructure/sse"
	"github.com/creaturederby/derby/internal/tuning"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	rules, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		log.Fatalf("tuning error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// infrastructure
	store := postgres.NewStore(pool)
	chainClient := explorer.NewClient(cfg.ExplorerURL, cfg.ExplorerTimeout, logger)
	sseHub := sse.NewHub()

	keyStore, err := keystore.NewFromEnv()
	if err != nil {
		log.Fatalf("keystore error: %v", err)
	}

	var archiver race.Archiver
	if cfg.ArchiveEnabled() && !keyStore.Empty() {
		s3Client, err := archive.NewS3Client(ctx, cfg.ArchiveEndpoint, cfg.ArchiveRegion, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey)
		if err != nil {
			log.Fatalf("archive error: %v", err)
		}
		archiver = archive.New(s3Client, cfg.ArchiveBucket, cfg.ArchivePrefix, keyStore, logger)
	} else {
		logger.Warn().Msg("race archive disabled: ARCHIVE_BUCKET or signing key not set")
	}

	// executors
	heights := executor.NewHeightSource(chainClient, logger)
	registry, err := executor.NewRegistry(logger,
		executor.NewTrain(rules, heights, logger),
		executor.NewTreatment(rules, logger),
		executor.NewRaceEntry(rules, logger),
	)
	if err != nil {
		log.Fatalf("executor error: %v", err)
	}

	// services
	guard := payment.NewGuard(store.Ledger())
	detector := payment.NewDetector(chainClient, guard, store.Payments(), payment.DetectorConfig{
		TreasuryAddress:  cfg.TreasuryAddress,
		VerifyCallbackTx: cfg.VerifyCallbackTx,
		Lookback:         cfg.ScanLookback,
	}, logger)
	paymentSvc := payment.NewService(store, registry, detector, guard, sseHub, payment.Config{
		RequestTTL: cfg.RequestTTL,
		ScanBatch:  cfg.ScanBatch,
	}, logger)
	raceSvc := race.NewService(store, chainClient, rules, archiver, sseHub, logger)
	seasonSvc := season.NewService(store.Seasons(), logger)
	creatureSvc := creature.NewService(store.Creatures(), rules, heights, logger)

	// API server
	apiServer := httpapi.NewServer(
		paymentSvc,
		raceSvc,
		seasonSvc,
		creatureSvc,
		sseHub,
		cfg.TreasuryAddress,
		cfg.AdminTokenHash,
		cfg.CallbackTokenHash,
		cfg.RequestTimeout,
		store.Ping,
		logger,
	)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background sweeps
	sched, err := scheduler.New(paymentSvc, raceSvc, scheduler.Config{
		ScanInterval:      cfg.ScanInterval,
		RaceSweepInterval: cfg.RaceSweepInterval,
	}, logger)
	if err != nil {
		log.Fatalf("scheduler error: %v", err)
	}
	sched.Start()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	sseHub.Stop()
	_ = httpServer.Shutdown(ctxShutdown)
	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown failed")
	}
}
