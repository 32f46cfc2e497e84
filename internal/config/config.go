package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spm1001/skill-chrome-log/internal/storage"
)

// Config holds all configuration for the capture daemon and its read-side
// commands.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Storage settings
	LogDir      string
	PIDFile     string
	MaxLogBytes int64
	MaxRotated  int

	// Capture behavior
	MaxBodyBytes int
	StaleAfter   time.Duration

	// Protocol timing
	CommandTimeout   time.Duration
	DiscoveryTimeout time.Duration
	ReconnectDelay   time.Duration

	// Dashboard and process logging
	DashboardAddr         string
	DashboardCandidates   []string
	DashboardAutoFallback bool
	LogLevel              string
	LogFile               string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	logDir := storage.ExpandHome(getEnvOrDefault("CHROMELOG_DIR", storage.DefaultLogDir()))
	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROME_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROME_CDP_PORT", 9222),
		LogDir:           logDir,
		PIDFile:          storage.ExpandHome(getEnvOrDefault("CHROMELOG_PID_FILE", storage.DefaultPIDPath(logDir))),
		MaxLogBytes:      int64(getEnvIntOrDefault("CHROMELOG_MAX_LOG_BYTES", storage.DefaultMaxBytes)),
		MaxRotated:       getEnvIntOrDefault("CHROMELOG_MAX_ROTATED", storage.DefaultMaxRotated),
		MaxBodyBytes:     getEnvIntOrDefault("CHROMELOG_MAX_BODY_BYTES", 100*1024),
		StaleAfter:       getEnvMillisOrDefault("CHROMELOG_STALE_AFTER_MS", 10*time.Minute),
		CommandTimeout:   getEnvMillisOrDefault("CHROMELOG_COMMAND_TIMEOUT_MS", 10*time.Second),
		DiscoveryTimeout: getEnvMillisOrDefault("CHROMELOG_DISCOVERY_TIMEOUT_MS", 5*time.Second),
		ReconnectDelay:   getEnvMillisOrDefault("CHROMELOG_RECONNECT_DELAY_MS", 5*time.Second),
		DashboardAddr:    getEnvOrDefault("CHROMELOG_DASHBOARD_ADDR", "127.0.0.1:9224"),
		DashboardCandidates: getEnvListOrDefault("CHROMELOG_DASHBOARD_CANDIDATES",
			[]string{"127.0.0.1:9225", "127.0.0.1:9226", "127.0.0.1:9227"}),
		DashboardAutoFallback: getEnvBoolOrDefault("CHROMELOG_DASHBOARD_AUTO_FALLBACK", true),
		LogLevel:              strings.ToLower(getEnvOrDefault("CHROMELOG_LOG_LEVEL", "info")),
		LogFile:               getEnvOrDefault("CHROMELOG_LOG_FILE", ""),
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.LogDir, "daemon.log")
	}
	cfg.LogFile = storage.ExpandHome(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("CHROME_CDP_PORT out of range: %d", c.CDPPort)
	}
	if c.LogDir == "" {
		return fmt.Errorf("CHROMELOG_DIR must not be empty")
	}
	if c.MaxLogBytes <= 0 {
		return fmt.Errorf("CHROMELOG_MAX_LOG_BYTES must be positive: %d", c.MaxLogBytes)
	}
	if c.MaxRotated < 1 {
		return fmt.Errorf("CHROMELOG_MAX_ROTATED must be at least 1: %d", c.MaxRotated)
	}
	if c.CommandTimeout < 100*time.Millisecond {
		c.CommandTimeout = 100 * time.Millisecond
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = 0
	}
	return nil
}

// CDPURL returns the debug endpoint's HTTP base, used for discovery.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvMillisOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
