// Command chromelog captures browser network traffic to a JSON-lines log
// and reads it back.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spm1001/skill-chrome-log/internal/config"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logDirFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "chromelog",
	Short:         "Capture Chrome network traffic through the DevTools protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logDirFlag, "log-dir", "", "Log directory (default $CHROMELOG_DIR or ~/.chrome-debug/logs)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Process log level: debug, info, warn, error")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flags. A
// --log-dir override also moves the PID file and process log unless those
// were set explicitly.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logDirFlag != "" {
		cfg.LogDir = storage.ExpandHome(logDirFlag)
		if os.Getenv("CHROMELOG_PID_FILE") == "" {
			cfg.PIDFile = storage.DefaultPIDPath(cfg.LogDir)
		}
		if os.Getenv("CHROMELOG_LOG_FILE") == "" {
			cfg.LogFile = filepath.Join(cfg.LogDir, "daemon.log")
		}
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	return cfg, nil
}

// serveLogFile is the process log for "chromelog serve". lumberjack assumes
// one writer per file, so a dashboard running beside the daemon gets its
// own server.log unless CHROMELOG_LOG_FILE pins a path.
func serveLogFile(cfg *config.Config) string {
	if os.Getenv("CHROMELOG_LOG_FILE") != "" {
		return cfg.LogFile
	}
	return filepath.Join(cfg.LogDir, "server.log")
}

// setupLogger sends the process log to stdout and a rotated file, tagged
// with a per-process run id.
func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h).With("run_id", uuid.NewString()))
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
