// Package main is the entry point for the Comportamento Hub API server.
//
// The server exposes the occurrence lifecycle and score queries over REST.
// Architecture follows Clean Architecture / DDD:
// - Domain: pure scoring and lifecycle rules, zero external dependencies
// - Application: CQRS command and query handlers
// - Infrastructure: PostgreSQL, Redis, SMTP, in-memory event bus
// - Interface: HTTP handlers
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fato-hub/comportamento-hub/config"
	"github.com/fato-hub/comportamento-hub/internal/application/command"
	"github.com/fato-hub/comportamento-hub/internal/application/eventhandler"
	"github.com/fato-hub/comportamento-hub/internal/application/query"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/messaging"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/persistence/postgres"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/persistence/redis"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/service"
	httpserver "github.com/fato-hub/comportamento-hub/internal/interface/http"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logger.LevelInfo
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{Level: level, AddCaller: cfg.App.Debug})

	log.Info("starting comportamento-hub API",
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database ready")

	// ─────────────────────────────────────────────────────────────────────────
	// Cache (Redis persisted tier is optional)
	// ─────────────────────────────────────────────────────────────────────────
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
			log.Info("redis cache tier connected")
		}
	}

	clock := shared.SystemClock{}
	cacheLayer := cache.New(tier, clock, log)

	// ─────────────────────────────────────────────────────────────────────────
	// Event bus & notification side effects
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		EnableMetrics:  true,
	})
	defer bus.Close()

	if !cfg.Mail.Disabled && cfg.Mail.Host != "" && len(cfg.Mail.Recipients) > 0 {
		mailer := service.NewMailer(service.MailerConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, log)

		notifier := eventhandler.NewOnOccurrenceConsolidated(mailer, bus, eventhandler.ConsolidatedNotifierConfig{
			Recipients:         cfg.Mail.Recipients,
			OnlyScoreAffecting: cfg.Mail.OnlyScoreAffecting,
		}, log)
		if err := bus.Subscribe(shared.EventOccurrenceConsolidated, notifier.Handler()); err != nil {
			return fmt.Errorf("subscribe notifier: %w", err)
		}
		log.Info("consolidation notifications enabled",
			logger.Int("recipients", len(cfg.Mail.Recipients)))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Repositories, services, handlers
	// ─────────────────────────────────────────────────────────────────────────
	occurrenceRepo := postgres.NewOccurrenceRepository(conn)
	studentRepo := postgres.NewStudentRepository(conn)
	operatorRepo := postgres.NewOperatorRepository(conn)

	var auth *service.AuthService
	if !cfg.HTTP.AuthDisabled {
		auth = service.NewAuthService(operatorRepo, cacheLayer, log)
	} else {
		log.Warn("operator authentication is disabled")
	}

	deps := httpserver.Dependencies{
		CreateOccurrence:      command.NewCreateOccurrenceHandler(occurrenceRepo, studentRepo, bus, cacheLayer, clock, log),
		FlagOccurrence:        command.NewFlagOccurrenceHandler(occurrenceRepo, bus, cacheLayer, clock, log),
		ConsolidateOccurrence: command.NewConsolidateOccurrenceHandler(occurrenceRepo, studentRepo, bus, cacheLayer, clock, log),
		OccurrenceLifecycle:   command.NewRemoveOccurrenceHandler(occurrenceRepo, bus, cacheLayer, clock, log),
		UpdateTicket:          command.NewUpdateTicketHandler(occurrenceRepo, cacheLayer, clock, log),

		GetOccurrence:    query.NewGetOccurrenceHandler(occurrenceRepo, log),
		GetStudentScore:  query.NewGetStudentScoreHandler(studentRepo, cacheLayer, log),
		GetStudentReport: query.NewGetStudentReportHandler(occurrenceRepo, cacheLayer, clock, log),
		ListOccurrences:  query.NewListOccurrencesHandler(occurrenceRepo, cacheLayer, log),
		ListStudents:     query.NewListStudentsHandler(studentRepo, cacheLayer, log),

		Auth:   auth,
		Logger: log,
		HealthCheck: func(ctx context.Context) error {
			return conn.Ping(ctx)
		},
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("shutdown complete")
	return nil
}
