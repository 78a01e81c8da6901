package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	identityservice "pollhub/contexts/identity-access/identity-service"
	identitypostgres "pollhub/contexts/identity-access/identity-service/adapters/postgres"
	pollservice "pollhub/contexts/polling/poll-service"
	pollpostgres "pollhub/contexts/polling/poll-service/adapters/postgres"
	pollworkers "pollhub/contexts/polling/poll-service/application/workers"
	"pollhub/internal/platform/config"
	"pollhub/internal/platform/db"
	"pollhub/internal/platform/httpserver"
	"pollhub/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	sweeper       pollworkers.ExpirySweeper
	relay         pollworkers.OutboxRelay
	sweepInterval time.Duration
	relayInterval time.Duration
	logger        *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	pg, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.TokenSecret) == "" {
		_ = pg.Close()
		return nil, errors.New("TOKEN_SECRET is required")
	}

	pollRepo := pollpostgres.NewRepository(pg.DB, logger)
	pollModule := pollservice.NewModule(pollservice.Dependencies{
		Polls:           pollRepo,
		Votes:           pollRepo,
		Outbox:          pollRepo,
		OutboxRepo:      pollRepo,
		Publisher:       messaging.NewBus(logger),
		Clock:           pollpostgres.SystemClock{},
		IDGen:           pollpostgres.UUIDGenerator{},
		OutboxBatchSize: cfg.OutboxBatchSize,
		Logger:          logger,
	})

	identityRepo := identitypostgres.NewRepository(pg.DB, logger)
	identityModule := identityservice.NewModule(identityservice.Dependencies{
		Users:       identityRepo,
		Clock:       identitypostgres.SystemClock{},
		IDGen:       identitypostgres.UUIDGenerator{},
		TokenSecret: cfg.TokenSecret,
		TokenTTL:    cfg.TokenTTL,
		Logger:      logger,
	})

	server := httpserver.New(pollModule, identityModule, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	pg, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	repo := pollpostgres.NewRepository(pg.DB, logger)
	module := pollservice.NewModule(pollservice.Dependencies{
		Polls:           repo,
		Votes:           repo,
		Outbox:          repo,
		OutboxRepo:      repo,
		Publisher:       messaging.NewBus(logger),
		Clock:           pollpostgres.SystemClock{},
		IDGen:           pollpostgres.UUIDGenerator{},
		OutboxBatchSize: cfg.OutboxBatchSize,
		Logger:          logger,
	})

	return &WorkerApp{
		postgres:      pg,
		sweeper:       module.Sweeper,
		relay:         module.Relay,
		sweepInterval: cfg.SweepInterval,
		relayInterval: cfg.RelayInterval,
		logger:        logger,
	}, nil
}

// connect opens the pool and applies the schema. Both processes migrate on
// boot so either can come up first; the statements are idempotent.
func connect(cfg config.Config) (*db.Postgres, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run drives the expiry sweep and outbox relay on independent tickers.
// A failed pass is logged and retried on the next tick; only context
// cancellation stops the loop.
func (w *WorkerApp) Run(ctx context.Context) error {
	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()
	relayTicker := time.NewTicker(w.relayInterval)
	defer relayTicker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"sweep_interval", w.sweepInterval.String(),
		"relay_interval", w.relayInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweepTicker.C:
			if err := w.sweeper.RunOnce(ctx); err != nil {
				w.logger.Error("expiry sweep pass failed",
					"event", "bootstrap_sweep_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		case <-relayTicker.C:
			if err := w.relay.RunOnce(ctx); err != nil {
				w.logger.Error("outbox relay pass failed",
					"event", "bootstrap_relay_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
