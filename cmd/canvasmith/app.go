package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"canvasmith/internal/adapter/canvas"
	"canvasmith/internal/adapter/history"
	"canvasmith/internal/infra/config"
	"canvasmith/internal/infra/logger"
	"canvasmith/internal/infra/metrics"
	"canvasmith/internal/infra/tracer"
	"canvasmith/internal/usecase/eventbus"
)

// app holds the process-wide collaborators shared by every engine.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *eventbus.Bus
	metrics *metrics.Metrics
	pages   *canvas.LocalBackend // nil unless canvas is enabled
	history *history.SQLiteStore // nil unless history is enabled

	cleanup []func()
}

// newApp loads configuration and starts the ambient services:
// logging, tracing, the event bus, metrics, the canvas backend and history.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.defer_(func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.defer_(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(sctx)
	})

	a.bus = eventbus.New(log)
	fail := func(err error) (*app, error) {
		a.bus.Close()
		a.close()
		return nil, err
	}

	a.metrics = metrics.New()
	a.defer_(a.metrics.ObserveAlerts(a.bus))
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics, a.metrics, log)
		if err := srv.Start(); err != nil {
			return fail(fmt.Errorf("metrics: %w", err))
		}
		a.defer_(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	if cfg.Canvas.Enabled {
		pages, err := canvas.NewLocalBackend(cfg.Canvas.Root, cfg.Canvas.MaxSize)
		if err != nil {
			return fail(fmt.Errorf("canvas: %w", err))
		}
		a.pages = pages
	}

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fail(fmt.Errorf("history: %w", err))
		}
		a.history = store
		a.defer_(func() { _ = store.Close() })
		history.NewRecorder(store, cfg.History.Breaker, log).Attach(a.bus)
	}

	// Runs first on close: queued events reach the recorder before the
	// store is closed.
	a.defer_(a.bus.Close)
	return a, nil
}

// defer_ registers fn to run on close, in reverse order.
func (a *app) defer_(fn func()) { a.cleanup = append(a.cleanup, fn) }

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// openHistory opens the history database without the rest of the app.
func openHistory() (*history.SQLiteStore, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if !cfg.History.Enabled {
		return nil, errors.New("history is disabled (set history.enabled: true)")
	}
	return history.NewSQLiteStore(cfg.History.Path)
}
