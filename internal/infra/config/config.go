package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Runner    RunnerConfig    `yaml:"runner"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Shell     ShellConfig     `yaml:"shell"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// RunnerConfig holds engine settings.
type RunnerConfig struct {
	Mode           string `yaml:"mode"`            // "full" or "design"
	DatabaseSource string `yaml:"database_source"` // label on database alerts
	DeploySource   string `yaml:"deploy_source"`   // label on deploy alerts
}

// WorkspaceConfig holds the file store settings for file actions.
type WorkspaceConfig struct {
	Root    string `yaml:"root"`
	Backend string `yaml:"backend"` // "local" or "memory"
	MaxSize int    `yaml:"max_size"`
}

// ShellConfig holds command session settings.
type ShellConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Timeout   time.Duration `yaml:"timeout"`    // per command, 0 disables
	OutputMax int           `yaml:"output_max"` // bytes of output kept per command
}

// CanvasConfig holds design-mode page materialization settings.
type CanvasConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Root         string  `yaml:"root"`
	MaxSize      int     `yaml:"max_size"`
	PreviewRate  float64 `yaml:"preview_rate"` // intermediate forwards per second, 0 = unthrottled
	PreviewBurst int     `yaml:"preview_burst"`
}

// HistoryConfig holds action history persistence settings.
type HistoryConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Path    string               `yaml:"path"`
	Breaker CircuitBreakerConfig `yaml:"breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the history recorder.
type CircuitBreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	RequestsPerMin int    `yaml:"requests_per_min"` // per client IP, 0 disables
	Burst          int    `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.canvasmith.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".canvasmith")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Runner: RunnerConfig{
			Mode:           "full",
			DatabaseSource: "database",
			DeploySource:   "deploy",
		},
		Workspace: WorkspaceConfig{
			Root:    "./workspace",
			Backend: "local",
			MaxSize: 10 * 1024 * 1024,
		},
		Shell: ShellConfig{
			Enabled:   true,
			Path:      "/bin/sh",
			Timeout:   5 * time.Minute,
			OutputMax: 1024 * 1024,
		},
		Canvas: CanvasConfig{
			Enabled:      false,
			Root:         filepath.Join(dataDir, "canvas"),
			MaxSize:      512 * 1024,
			PreviewRate:  4,
			PreviewBurst: 1,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    filepath.Join(dataDir, "history.db"),
			Breaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Addr:           ":9464",
			RequestsPerMin: 120,
			Burst:          20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over the defaults, applies env var overrides
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validatePermissions(path); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CANVASMITH_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANVASMITH_RUNNER_MODE"); v != "" {
		cfg.Runner.Mode = v
	}
	if v := os.Getenv("CANVASMITH_RUNNER_DATABASE_SOURCE"); v != "" {
		cfg.Runner.DatabaseSource = v
	}
	if v := os.Getenv("CANVASMITH_RUNNER_DEPLOY_SOURCE"); v != "" {
		cfg.Runner.DeploySource = v
	}
	if v := os.Getenv("CANVASMITH_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("CANVASMITH_WORKSPACE_BACKEND"); v != "" {
		cfg.Workspace.Backend = v
	}
	if v := os.Getenv("CANVASMITH_SHELL_ENABLED"); v == "false" {
		cfg.Shell.Enabled = false
	}
	if v := os.Getenv("CANVASMITH_SHELL_PATH"); v != "" {
		cfg.Shell.Path = v
	}
	if v := os.Getenv("CANVASMITH_SHELL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Shell.Timeout = d
		}
	}
	if v := os.Getenv("CANVASMITH_SHELL_OUTPUT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Shell.OutputMax = n
		}
	}
	if v := os.Getenv("CANVASMITH_CANVAS_ENABLED"); v == "true" {
		cfg.Canvas.Enabled = true
	}
	if v := os.Getenv("CANVASMITH_CANVAS_ROOT"); v != "" {
		cfg.Canvas.Root = v
	}
	if v := os.Getenv("CANVASMITH_CANVAS_PREVIEW_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Canvas.PreviewRate = f
		}
	}
	if v := os.Getenv("CANVASMITH_HISTORY_ENABLED"); v == "true" {
		cfg.History.Enabled = true
	}
	if v := os.Getenv("CANVASMITH_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("CANVASMITH_METRICS_ENABLED"); v == "true" {
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("CANVASMITH_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("CANVASMITH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CANVASMITH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CANVASMITH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CANVASMITH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
