// Package app wires the document engine from configuration.
// cmd/server, cmd/worker and cmd/ddtctl share it so every entry point
// issues documents through the same locks, counters and sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commesse/internal/config"
	corenumerator "commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	"commesse/internal/domain/reconcile"
	"commesse/internal/domain/trigger"
	"commesse/internal/infrastructure/excel"
	"commesse/internal/infrastructure/lock"
	"commesse/internal/infrastructure/notify"
	"commesse/internal/infrastructure/numerator"
	"commesse/internal/infrastructure/render"
	"commesse/internal/infrastructure/storage/postgres"
	"commesse/pkg/logger"
)

// App holds the wired components.
type App struct {
	Config config.Config
	Log    *logger.Logger

	// Pool and Registry are nil without DATABASE_URL.
	Pool     *postgres.Pool
	Registry *postgres.Registry

	Store      corenumerator.CounterStore
	Locks      *lock.Manager
	Reconciler *reconcile.Reconciler
	Generator  *generator.Generator
	Dispatcher *notify.Dispatcher
	Service    *generator.Service
	Trigger    *trigger.Debouncer
}

// Option customises wiring, mostly for tests.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock fixes the generator's notion of today.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
}

// New wires every component. Close must be called on success.
func New(ctx context.Context, cfg config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Default()
	}
	a := &App{Config: cfg, Log: log}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		log.Info("database connection established")

		registry, err := postgres.NewRegistry(pool, log)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if err := registry.EnsureSchema(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Registry = registry
	}

	store, err := a.counterStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store

	locks, err := lock.NewManager(cfg.LockDir(), log, lock.WithStaleAfter(cfg.LockStaleAfter))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Locks = locks

	if cfg.OrdersRoot == "" {
		log.Warn("ORDERS_ROOT not set, reconcile only scans the requested folder")
	}
	a.Reconciler = reconcile.New(cfg.OrdersRoot, store, log)

	renderer := render.New(render.Templates{
		corenumerator.Entrata: {Setting: "TEMPLATE_ENTRATA", Path: cfg.TemplateEntrata},
		corenumerator.Uscita:  {Setting: "TEMPLATE_USCITA", Path: cfg.TemplateUscita},
	}, log)

	var genOpts []generator.Option
	if o.clock != nil {
		genOpts = append(genOpts, generator.WithClock(o.clock))
	}
	a.Generator = generator.New(store, locks, a.Reconciler, renderer, log, genOpts...)

	a.Dispatcher = notify.New(notify.Config{}, log, a.sinks()...)
	a.Service = generator.NewService(a.Generator, a.Dispatcher,
		generator.ServiceConfig{RequireOutbound: cfg.RequireOutbound}, log)

	a.Trigger = trigger.New(a.Service, trigger.Config{
		Window:     cfg.DebounceWindow,
		RetryDelay: cfg.RetryDelay,
	}, log)

	log.Infow("document engine ready",
		"counter_backend", cfg.CounterBackend,
		"orders_root", cfg.OrdersRoot,
		"require_outbound", cfg.RequireOutbound,
		"registry", a.Registry != nil,
	)
	return a, nil
}

func (a *App) counterStore(ctx context.Context) (corenumerator.CounterStore, error) {
	switch a.Config.CounterBackend {
	case config.BackendPostgres:
		if a.Pool == nil {
			return nil, errors.New("postgres counter backend requires DATABASE_URL")
		}
		store := numerator.NewPostgresStore(a.Pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendFile, "":
		return numerator.NewFileStore(a.Config.DataDir, a.Log)
	default:
		return nil, fmt.Errorf("unknown counter backend %q", a.Config.CounterBackend)
	}
}

func (a *App) sinks() []notify.Sink {
	var sinks []notify.Sink
	if a.Config.RegisterPath != "" {
		sinks = append(sinks, excel.NewRegister(a.Config.RegisterPath, a.Log))
	}
	if a.Registry != nil {
		sinks = append(sinks, a.Registry)
	}
	return sinks
}

// Close stops the trigger, drains pending notices and closes the database.
func (a *App) Close(ctx context.Context) {
	if a.Trigger != nil {
		a.Trigger.Stop()
	}
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			a.Log.Warnw("notify queue not drained", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
