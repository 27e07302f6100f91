package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"canvasmith/internal/infra/config"
)

func TestCheckConfigFile_Missing(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/canvasmith.yaml", nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "canvasmith.yaml")
	if err := os.WriteFile(cfgPath, []byte("runner: {{yaml"), 0o600); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for load error")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "canvasmith.yaml")
	if err := os.WriteFile(cfgPath, []byte("runner:\n  mode: design\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Status, result.Message)
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for name, fn := range map[string]func(*config.Config) CheckResult{
		"shell":     checkShell,
		"workspace": checkWorkspace,
		"canvas":    checkCanvas,
		"history":   checkHistory,
		"metrics":   checkMetrics,
	} {
		if got := fn(nil).Status; got != StatusFail {
			t.Errorf("%s: expected FAIL for nil config, got %s", name, got)
		}
	}
}

func TestCheckShell(t *testing.T) {
	cfg := config.Defaults()
	cfg.Shell.Enabled = false
	if got := checkShell(cfg).Status; got != StatusSkip {
		t.Errorf("expected SKIP for disabled shell, got %s", got)
	}

	cfg.Shell.Enabled = true
	cfg.Shell.Path = "definitely-not-a-shell-binary"
	result := checkShell(cfg)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for missing shell, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for missing shell")
	}

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	cfg.Shell.Path = "/bin/sh"
	if got := checkShell(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS for /bin/sh, got %s", got)
	}
}

func TestCheckWorkspace_CreatesDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "nested", "workspace")

	result := checkWorkspace(cfg)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
	if _, err := os.Stat(cfg.Workspace.Root); err != nil {
		t.Errorf("workspace dir not created: %v", err)
	}
}

func TestCheckWorkspace_MemoryBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Workspace.Backend = "memory"
	cfg.Shell.Enabled = false
	cfg.Workspace.Root = "/nonexistent/never/created"

	if got := checkWorkspace(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS for memory backend, got %s", got)
	}
}

func TestCheckWritableDir_NotWritable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	if got := checkWritableDir(dir).Status; got != StatusFail {
		t.Errorf("expected FAIL for read-only dir, got %s", got)
	}
}

func TestCheckOptionalComponents_Disabled(t *testing.T) {
	cfg := config.Defaults()
	if got := checkCanvas(cfg).Status; got != StatusSkip {
		t.Errorf("canvas: expected SKIP, got %s", got)
	}
	if got := checkHistory(cfg).Status; got != StatusSkip {
		t.Errorf("history: expected SKIP, got %s", got)
	}
	if got := checkMetrics(cfg).Status; got != StatusSkip {
		t.Errorf("metrics: expected SKIP, got %s", got)
	}
}

func TestCheckHistory_Enabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "data", "history.db")

	if got := checkHistory(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS, got %s", got)
	}
}

func TestCheckMetrics_AddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := config.Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ln.Addr().String()
	if got := checkMetrics(cfg).Status; got != StatusFail {
		t.Errorf("expected FAIL for busy addr, got %s", got)
	}

	cfg.Metrics.Addr = "127.0.0.1:0"
	if got := checkMetrics(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS for free addr, got %s", got)
	}
}
