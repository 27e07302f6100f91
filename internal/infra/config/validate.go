package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateRunner(cfg, ve)
	validateWorkspace(cfg, ve)
	validateShell(cfg, ve)
	validateCanvas(cfg, ve)
	validateHistory(cfg, ve)
	validateMetrics(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateRunner(cfg *Config, ve *ValidationError) {
	switch cfg.Runner.Mode {
	case "full", "design":
	default:
		ve.Add("runner.mode %q is invalid (valid: full, design)", cfg.Runner.Mode)
	}
	if cfg.Runner.Mode == "design" && !cfg.Canvas.Enabled {
		ve.Add("canvas.enabled must be true when runner.mode is design")
	}
}

func validateWorkspace(cfg *Config, ve *ValidationError) {
	switch cfg.Workspace.Backend {
	case "local":
		if cfg.Workspace.Root == "" {
			ve.Add("workspace.root must not be empty for the local backend")
		}
	case "memory":
	default:
		ve.Add("workspace.backend %q is invalid (valid: local, memory)", cfg.Workspace.Backend)
	}
	if cfg.Workspace.MaxSize <= 0 {
		ve.Add("workspace.max_size must be > 0")
	}
}

func validateShell(cfg *Config, ve *ValidationError) {
	if !cfg.Shell.Enabled {
		return
	}
	if cfg.Shell.Path == "" {
		ve.Add("shell.path must not be empty when shell is enabled")
	}
	if cfg.Shell.Timeout < 0 {
		ve.Add("shell.timeout must be >= 0")
	}
	if cfg.Shell.OutputMax <= 0 {
		ve.Add("shell.output_max must be > 0")
	}
}

func validateCanvas(cfg *Config, ve *ValidationError) {
	if !cfg.Canvas.Enabled {
		return
	}
	if cfg.Canvas.Root == "" {
		ve.Add("canvas.root must not be empty when canvas is enabled")
	}
	if cfg.Canvas.MaxSize <= 0 {
		ve.Add("canvas.max_size must be > 0")
	}
	if cfg.Canvas.PreviewRate < 0 {
		ve.Add("canvas.preview_rate must be >= 0")
	}
	if cfg.Canvas.PreviewRate > 0 && cfg.Canvas.PreviewBurst <= 0 {
		ve.Add("canvas.preview_burst must be > 0 when preview_rate is set")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if !cfg.History.Enabled {
		return
	}
	if cfg.History.Path == "" {
		ve.Add("history.path must not be empty when history is enabled")
	}
	if cfg.History.Breaker.MaxFailures <= 0 {
		ve.Add("history.breaker.max_failures must be > 0")
	}
	if cfg.History.Breaker.Timeout <= 0 {
		ve.Add("history.breaker.timeout must be > 0")
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is invalid: %v", cfg.Metrics.Addr, err)
	}
	if cfg.Metrics.RequestsPerMin < 0 {
		ve.Add("metrics.requests_per_min must be >= 0, got %d", cfg.Metrics.RequestsPerMin)
	}
	if cfg.Metrics.RequestsPerMin > 0 && cfg.Metrics.Burst < 1 {
		ve.Add("metrics.burst must be >= 1 when rate limiting, got %d", cfg.Metrics.Burst)
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (valid: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (valid: stdout, noop)", cfg.Tracer.Exporter)
	}
}
