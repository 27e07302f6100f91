package main

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"canvasmith/internal/adapter/filestore"
	"canvasmith/internal/adapter/terminal"
	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
	"canvasmith/internal/infra/logger"
	"canvasmith/internal/usecase/runner"
)

// engine is one session's runner plus the collaborators it owns.
type engine struct {
	runner *runner.Runner
	files  domain.FileStore
	stops  []func()
}

func (e *engine) close() {
	for i := len(e.stops) - 1; i >= 0; i-- {
		e.stops[i]()
	}
	e.stops = nil
}

// newEngine wires a runner for sessionID according to the configured mode.
// Every session gets its own workspace directory and shell.
func (a *app) newEngine(sessionID string) (*engine, error) {
	cfg := a.cfg
	log := logger.ForSession(a.logger, sessionID)

	workDir := filepath.Join(cfg.Workspace.Root, sessionID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session workspace: %w", err)
	}
	files, err := filestore.New(config.WorkspaceConfig{
		Root:    workDir,
		Backend: cfg.Workspace.Backend,
		MaxSize: cfg.Workspace.MaxSize,
	})
	if err != nil {
		return nil, err
	}

	e := &engine{files: files}
	notifier := runner.BusNotifier(a.bus, sessionID)

	var registry *runner.Registry
	switch runner.Mode(cfg.Runner.Mode) {
	case runner.ModeDesign:
		registry = runner.NewDesignRegistry(files, a.pageDeriver())
	default:
		deps := runner.FullDeps{
			Files:          files,
			Notifier:       notifier,
			DatabaseSource: cfg.Runner.DatabaseSource,
			DeploySource:   cfg.Runner.DeploySource,
		}
		if cfg.Shell.Enabled {
			provider := terminal.NewProvider(terminal.FromConfig(cfg.Shell, workDir), a.bus, log)
			e.stops = append(e.stops, func() { _ = provider.Close() })
			deps.Sessions = provider
		}
		registry = runner.NewFullRegistry(deps)
	}

	e.runner = runner.New(sessionID, registry, notifier, a.logger,
		runner.WithDeploySource(cfg.Runner.DeploySource),
	)
	e.stops = append(e.stops,
		runner.PublishStates(a.bus, e.runner),
		a.metrics.Observe(e.runner),
	)
	log.Debug("engine ready", "mode", cfg.Runner.Mode, "files", files.Name())
	return e, nil
}

// pageDeriver builds the design-mode page pipeline. Pages go to the canvas
// backend when one is configured and are always announced on the bus.
func (a *app) pageDeriver() *runner.PageDeriver {
	var sink domain.PageSink
	if a.pages != nil {
		sink = a.pages
	}
	limit := rate.Inf
	if a.cfg.Canvas.PreviewRate > 0 {
		limit = rate.Limit(a.cfg.Canvas.PreviewRate)
	}
	burst := a.cfg.Canvas.PreviewBurst
	if burst < 1 {
		burst = 1
	}
	return runner.NewPageDeriver(runner.NewPublishingSink(sink, a.bus), runner.WithPreviewRate(limit, burst))
}
