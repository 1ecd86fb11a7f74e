package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trasealla/delivery-tracking/internal/api"
	"github.com/trasealla/delivery-tracking/internal/core/service"
	"github.com/trasealla/delivery-tracking/internal/infrastructure/config"
	mongodb "github.com/trasealla/delivery-tracking/internal/infrastructure/db/mongo"
	redisdb "github.com/trasealla/delivery-tracking/internal/infrastructure/db/redis"
	"github.com/trasealla/delivery-tracking/internal/infrastructure/queue"
	"github.com/trasealla/delivery-tracking/internal/realtime"
	"github.com/trasealla/delivery-tracking/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connect failed")
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	orders := mongodb.NewOrderRepository(db)
	if err := orders.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("mongodb index setup failed")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer func() { _ = rdb.Close() }()

	positions := redisdb.NewPositionStore(rdb)
	publisher := redisdb.NewPublisher(rdb)
	dedup := redisdb.NewScanDedup(rdb)

	// --- Core services ---
	trackingSvc := service.NewTrackingService(orders, positions, publisher, dedup,
		logger.Component("tracking"))
	positionSvc := service.NewPositionService(positions, orders, publisher,
		logger.Component("positions"))

	// --- Realtime hub and position ingest ---
	hub := realtime.NewHub(rdb, logger.Component("realtime"))
	dispatcher := queue.NewDispatcher(cfg.Tracking.IngestWorkers, positionSvc,
		logger.Component("ingest"))
	dispatcher.Start(ctx)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Mongo:      db,
		Redis:      rdb,
		Hub:        hub,
		Dispatcher: dispatcher,
		Tracking:   trackingSvc,
		Positions:  positionSvc,
		JWTSecret:  cfg.JWTSecret,
		Log:        log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("tracking server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	cancel() // stops the ingest workers

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
