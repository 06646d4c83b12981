// Package cli wires the configured adapters into an engine and implements the
// sqlgraph commands on top of it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/config"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/pool"
	"github.com/aretw0/sqlgraph/internal/presentation/graph"
	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/adapters/openai"
	"github.com/aretw0/sqlgraph/pkg/adapters/process"
	"github.com/aretw0/sqlgraph/pkg/observability"
	"github.com/aretw0/sqlgraph/pkg/ports"
	"github.com/aretw0/sqlgraph/pkg/session"
)

// App is a fully wired engine plus the resources it owns.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Engine  *sqlgraph.Engine
	Metrics *observability.Metrics

	closers []func() error
}

// Overrides replace single adapters, mostly for tests.
type Overrides struct {
	LLM       ports.LLM
	Database  ports.Database
	Retriever ports.Retriever
	Store     ports.CheckpointStore
}

// NewLogger builds the application logger. debug forces the debug level.
func NewLogger(cfg config.LogConfig, debug bool) *slog.Logger {
	level := logging.ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewWithWriter(stderr, level, cfg.Format)
}

// NewApp builds every adapter named by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, ov Overrides) (app *App, err error) {
	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.Metrics = metrics

	llm := ov.LLM
	if llm == nil {
		llm = openai.New(cfg.LLM, openai.WithLogger(logger))
	}

	db := ov.Database
	if db == nil {
		db = app.database()
	}

	retriever := ov.Retriever
	if retriever == nil {
		if retriever, err = app.retriever(ctx); err != nil {
			return nil, err
		}
	}

	store := ov.Store
	var locker ports.DistributedLocker
	if store == nil {
		if store, locker, err = app.store(); err != nil {
			return nil, err
		}
	}
	if store, err = app.protect(store); err != nil {
		return nil, err
	}

	smOpts := []session.Option{session.WithLogger(logger), session.WithLockTTL(cfg.Store.LockTTL)}
	if locker != nil {
		smOpts = append(smOpts, session.WithLocker(locker))
	}

	deps := sqlgraph.Deps{
		LLM:         llm,
		Retriever:   retriever,
		Database:    db,
		Datasources: memory.NewDatasources(cfg.Datasources...),
		Runner:      process.NewRunner(cfg.Sandbox, process.WithLogger(logger)),
		Pool:        pool.New(cfg.Workflow.WorkerPoolSize),
		Logger:      logger,
		Hooks:       observability.LogHooks(logger).Merge(metrics.Hooks()),
	}
	engine, err := sqlgraph.New(deps, cfg.WorkflowSettings(),
		sqlgraph.WithLogger(logger),
		sqlgraph.WithSessionManager(session.NewManager(store, smOpts...)),
	)
	if err != nil {
		return nil, err
	}
	app.Engine = engine
	return app, nil
}

// Mermaid renders the compiled workflow.
func (a *App) Mermaid() string {
	return graph.GenerateMermaid(a.Engine.Graph(), nil)
}

// Close releases pools, indexes and clients in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
