package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/config"
	"github.com/kailas-cloud/credits/internal/db"
	dbRedis "github.com/kailas-cloud/credits/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/credits/internal/db/sqlite"
	"github.com/kailas-cloud/credits/internal/directory"
	logpkg "github.com/kailas-cloud/credits/internal/logger"
	"github.com/kailas-cloud/credits/internal/metrics"
	creditrepo "github.com/kailas-cloud/credits/internal/repository/credit"
	chiTransport "github.com/kailas-cloud/credits/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/credits/internal/transport/nats"
	credituc "github.com/kailas-cloud/credits/internal/usecase/credit"
	healthuc "github.com/kailas-cloud/credits/internal/usecase/health"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
	"github.com/kailas-cloud/credits/internal/usecase/rules"
	"github.com/kailas-cloud/credits/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting credits service",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("credits_enabled", cfg.Credits.Enabled),
	)

	store, err := openStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	repo := creditrepo.New(store, cfg.Storage.KeyPrefix)

	// Lease bus is optional; without it leases are only known through the admin API.
	var bus *natsTransport.Bus
	if cfg.NATS.Enabled() {
		nc, err := natsTransport.Connect(natsTransport.ConnConfig{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			Token:         cfg.NATS.Token,
			ReconnectWait: time.Duration(cfg.NATS.ReconnectWaitSec) * time.Second,
		}, logpkg.Component(logger, "nats"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		bus = natsTransport.NewBus(nc, cfg.NATS.SubjectPrefix, logpkg.Component(logger, "nats"))
		logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrlRedacted()))
	}

	// Pass nil interfaces, not typed nil pointers, when the bus is absent.
	var stopper directory.Stopper
	var busChecker healthuc.BusChecker
	if bus != nil {
		stopper = bus
		busChecker = bus
	}

	dir := directory.New(stopper)
	resolver := rules.New(
		paramSource(cfg.Credits.UserCap),
		paramSource(cfg.Credits.UserGrantValue),
		paramSource(cfg.Credits.UserGrantInterval),
	)
	creditSvc := credituc.New(repo, resolver, dir, cfg.Credits.Enabled,
		credituc.WithLogger(logpkg.Component(logger, "credits")))

	if bus != nil {
		if err := bus.Subscribe(creditSvc, dir); err != nil {
			logger.Fatal("Failed to subscribe to lease bus", zap.Error(err))
		}
		defer func() { _ = bus.Close() }()
	}

	engine := reconcile.New(repo, dir,
		reconcile.Config{
			Interval:    time.Duration(cfg.Credits.TaskIntervalSec) * time.Second,
			StopTimeout: time.Duration(cfg.Credits.StopTimeoutSec) * time.Second,
		},
		reconcile.WithLogger(logpkg.Component(logger, "reconcile")),
		reconcile.WithRecorder(metrics.Engine{}),
		reconcile.WithPostTickHook(postTickHooks(cfg.Credits.PostHooks, bus)),
	)
	if cfg.Credits.Enabled {
		if err := engine.Start(ctx); err != nil {
			logger.Fatal("Failed to start reconciliation", zap.Error(err))
		}
	} else {
		logger.Info("Credits disabled, reconciliation not started")
	}

	healthSvc := healthuc.New(store, busChecker)
	server := chiTransport.NewServer(creditSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(authTokens(cfg.Auth.Tokens)),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	case config.DriverSQLite:
		if dbSQLite.IsMemory(cfg.Path) {
			logger.Warn("SQLite store is in memory; credit records are lost on restart")
		}
		return dbSQLite.NewStore(dbSQLite.Config{Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
