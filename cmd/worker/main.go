// Package main is the entry point for the Comportamento Hub background worker.
//
// The worker owns the recurring jobs: replaying stranded score deltas left by
// interrupted consolidations, and sweeping expired cache entries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fato-hub/comportamento-hub/config"
	"github.com/fato-hub/comportamento-hub/internal/application/command"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/messaging"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/persistence/postgres"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/persistence/redis"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/scheduler"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/scheduler/jobs"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logger.LevelInfo
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{Level: level, AddCaller: cfg.App.Debug})

	log.Info("starting comportamento-hub worker",
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, nothing to do")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// Backing stores
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var tier cache.PersistedTier
	if !cfg.Redis.Disabled {
		redisTier, err := redis.NewTier(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, running on in-process cache only", logger.Err(err))
		} else {
			defer redisTier.Close()
			tier = redisTier
		}
	}

	clock := shared.SystemClock{}
	cacheLayer := cache.New(tier, clock, log)

	// Reconciliation events are informational in the worker; sync delivery
	// keeps ordering trivial.
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode: false,
		Logger:    log,
	})
	defer bus.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// Jobs
	// ─────────────────────────────────────────────────────────────────────────
	occurrenceRepo := postgres.NewOccurrenceRepository(conn)
	studentRepo := postgres.NewStudentRepository(conn)

	reconcile := command.NewReconcileScoresHandler(occurrenceRepo, studentRepo, bus, cacheLayer, clock, log)

	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	if err := sched.Register(
		jobs.NewReconcileScores(reconcile, cfg.Scheduler.ReconcileBatch),
		scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval),
	); err != nil {
		return fmt.Errorf("register reconcile job: %w", err)
	}

	if err := sched.Register(
		jobs.NewSweepCache(cacheLayer),
		scheduler.NewIntervalSchedule(cfg.Scheduler.CacheSweepInterval),
	); err != nil {
		return fmt.Errorf("register cache sweep job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.Info("worker running",
		logger.Duration("reconcile_interval", cfg.Scheduler.ReconcileInterval),
		logger.Duration("cache_sweep_interval", cfg.Scheduler.CacheSweepInterval),
	)

	<-ctx.Done()
	log.Info("received shutdown signal")

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown complete")
	return nil
}
