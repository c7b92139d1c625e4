package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Addr() != "127.0.0.1:8377" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8377", cfg.Addr())
	}
	if cfg.RingSize != 100 || cfg.QueueCapacity != 100 {
		t.Errorf("fan-out defaults = %d/%d, want 100/100",
			cfg.RingSize, cfg.QueueCapacity)
	}
	if cfg.EvictThreshold != 10 {
		t.Errorf("EvictThreshold = %d, want 10", cfg.EvictThreshold)
	}
	if cfg.Heartbeat != 15*time.Second {
		t.Errorf("Heartbeat = %v, want 15s", cfg.Heartbeat)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0 (disabled)", cfg.IdleTimeout)
	}
	if cfg.TablePrefix != "tandem_" {
		t.Errorf("TablePrefix = %q, want tandem_", cfg.TablePrefix)
	}
	if cfg.DefaultEngine != "lorem" {
		t.Errorf("DefaultEngine = %q, want lorem", cfg.DefaultEngine)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TANDEM_PORT", "9000")
	t.Setenv("TANDEM_HEARTBEAT", "30s")
	t.Setenv("TANDEM_CONFIRM_TIMEOUT", "45")  // bare seconds
	t.Setenv("TANDEM_IDLE_TIMEOUT", "bogus")  // falls back to default
	t.Setenv("TANDEM_RING_SIZE", "one-fifty") // falls back to default
	t.Setenv("TANDEM_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Heartbeat != 30*time.Second {
		t.Errorf("Heartbeat = %v, want 30s", cfg.Heartbeat)
	}
	if cfg.ConfirmTimeout != 45*time.Second {
		t.Errorf("ConfirmTimeout = %v, want 45s", cfg.ConfirmTimeout)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want the 0 default", cfg.IdleTimeout)
	}
	if cfg.RingSize != 100 {
		t.Errorf("RingSize = %d, want the 100 default", cfg.RingSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }},
		{"sub-second heartbeat", func(c *Config) { c.Heartbeat = 100 * time.Millisecond }},
		{"zero queue capacity", func(c *Config) { c.QueueCapacity = -1 }},
		{"tiny body cap", func(c *Config) { c.MaxBodyBytes = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger("info", dir)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello", "k", "v")
	closer()

	files, err := filepath.Glob(filepath.Join(dir, "server-*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v (err %v), want exactly one", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file missing JSON record, got %q", data)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	for _, stamp := range []string{"2026-01-01T00-00-00", "2026-01-02T00-00-00", "2026-01-03T00-00-00"} {
		path := filepath.Join(dir, "server-"+stamp+".log")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	if err := cleanupOldLogs(dir, 2); err != nil {
		t.Fatalf("cleanupOldLogs() error = %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "server-*.log"))
	if len(files) != 2 {
		t.Fatalf("kept %d files, want 2", len(files))
	}
	for _, f := range files {
		if strings.Contains(f, "2026-01-01") {
			t.Errorf("oldest file survived cleanup: %s", f)
		}
	}
}
