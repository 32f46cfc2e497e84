package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"CHROME_CDP_ADDRESS", "CHROME_CDP_PORT", "CHROMELOG_DIR", "CHROMELOG_PID_FILE",
		"CHROMELOG_MAX_LOG_BYTES", "CHROMELOG_MAX_ROTATED", "CHROMELOG_MAX_BODY_BYTES",
		"CHROMELOG_COMMAND_TIMEOUT_MS", "CHROMELOG_RECONNECT_DELAY_MS", "CHROMELOG_LOG_FILE",
		"CHROMELOG_LOG_LEVEL", "CHROMELOG_DASHBOARD_CANDIDATES", "CHROMELOG_DASHBOARD_AUTO_FALLBACK",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9222" {
		t.Fatalf("CDPURL() = %q", cfg.CDPURL())
	}
	if cfg.MaxLogBytes != 50*1024*1024 || cfg.MaxRotated != 3 || cfg.MaxBodyBytes != 100*1024 {
		t.Fatalf("limits = %d/%d/%d", cfg.MaxLogBytes, cfg.MaxRotated, cfg.MaxBodyBytes)
	}
	if cfg.CommandTimeout != 10*time.Second || cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("timing = %v/%v", cfg.CommandTimeout, cfg.ReconnectDelay)
	}
	if !strings.HasSuffix(cfg.LogDir, filepath.Join(".chrome-debug", "logs")) {
		t.Fatalf("LogDir = %q", cfg.LogDir)
	}
	if !strings.HasSuffix(cfg.PIDFile, filepath.Join(".chrome-debug", ".daemon.pid")) {
		t.Fatalf("PIDFile = %q", cfg.PIDFile)
	}
	if cfg.LogFile != filepath.Join(cfg.LogDir, "daemon.log") {
		t.Fatalf("LogFile = %q", cfg.LogFile)
	}
	if !cfg.DashboardAutoFallback || len(cfg.DashboardCandidates) != 3 {
		t.Fatalf("dashboard = %v/%v", cfg.DashboardAutoFallback, cfg.DashboardCandidates)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	t.Setenv("CHROME_CDP_PORT", "9333")
	t.Setenv("CHROMELOG_DIR", dir)
	t.Setenv("CHROMELOG_PID_FILE", "")
	t.Setenv("CHROMELOG_LOG_FILE", "")
	t.Setenv("CHROMELOG_COMMAND_TIMEOUT_MS", "2500")
	t.Setenv("CHROMELOG_LOG_LEVEL", "DEBUG")
	t.Setenv("CHROMELOG_MAX_ROTATED", "not-a-number")
	t.Setenv("CHROMELOG_DASHBOARD_CANDIDATES", " 127.0.0.1:9300, ,127.0.0.1:9301")
	t.Setenv("CHROMELOG_DASHBOARD_AUTO_FALLBACK", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 || cfg.LogDir != dir || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PIDFile != filepath.Join(filepath.Dir(dir), ".daemon.pid") {
		t.Fatalf("PIDFile = %q", cfg.PIDFile)
	}
	if cfg.CommandTimeout != 2500*time.Millisecond {
		t.Fatalf("CommandTimeout = %v", cfg.CommandTimeout)
	}
	if cfg.MaxRotated != 3 {
		t.Fatalf("MaxRotated = %d; want default for unparsable value", cfg.MaxRotated)
	}
	want := []string{"127.0.0.1:9300", "127.0.0.1:9301"}
	if cfg.DashboardAutoFallback || strings.Join(cfg.DashboardCandidates, ",") != strings.Join(want, ",") {
		t.Fatalf("dashboard = %v/%v; want false/%v", cfg.DashboardAutoFallback, cfg.DashboardCandidates, want)
	}
}

func TestValidate(t *testing.T) {
	base := Config{CDPPort: 9222, LogDir: "/tmp/x", MaxLogBytes: 1, MaxRotated: 1, CommandTimeout: time.Second}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.CDPPort = 70000 }, false},
		{"empty dir", func(c *Config) { c.LogDir = "" }, false},
		{"zero rotated", func(c *Config) { c.MaxRotated = 0 }, false},
		{"zero log bytes", func(c *Config) { c.MaxLogBytes = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate() error = %v; want ok=%v", err, tt.ok)
			}
		})
	}

	c := base
	c.CommandTimeout = time.Millisecond
	_ = c.Validate()
	if c.CommandTimeout != 100*time.Millisecond {
		t.Fatalf("CommandTimeout = %v; want clamped to 100ms", c.CommandTimeout)
	}
}
