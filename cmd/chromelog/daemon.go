package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spm1001/skill-chrome-log/internal/api"
	"github.com/spm1001/skill-chrome-log/internal/capture"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/config"
	"github.com/spm1001/skill-chrome-log/internal/daemon"
	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/netutil"
	"github.com/spm1001/skill-chrome-log/internal/relay"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var dashboardAddrFlag string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the capture daemon in the foreground",
	Long: `Connects to the browser's debug endpoint, attaches to every page and
appends completed requests to requests.jsonl. Reconnects until stopped.
Exits non-zero if the log cannot be written.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&dashboardAddrFlag, "dashboard", "", "Also serve the dashboard on this address")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}
	if pid, running := storage.DaemonRunning(cfg.PIDFile); running && pid != os.Getpid() {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	slog.Info("daemon config loaded",
		"cdp_url", cfg.CDPURL(),
		"log_dir", cfg.LogDir,
		"pid_file", cfg.PIDFile,
		"max_log_bytes", cfg.MaxLogBytes,
		"max_rotated", cfg.MaxRotated,
		"max_body_bytes", cfg.MaxBodyBytes,
		"command_timeout", cfg.CommandTimeout,
		"reconnect_delay", cfg.ReconnectDelay,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := relay.NewBroker()
	writer, err := storage.NewWriter(cfg.LogDir, storage.WriterOptions{
		MaxBytes:   cfg.MaxLogBytes,
		MaxRotated: cfg.MaxRotated,
		OnWrite:    func(rec *types.Record) { broker.PublishJSON(relay.FeedRequest, rec) },
	})
	if err != nil {
		return err
	}

	d := daemon.New(daemon.Options{
		CDPURL:         cfg.CDPURL(),
		PIDFile:        cfg.PIDFile,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		StaleAfter:     cfg.StaleAfter,
		Conn: cdp.Options{
			CommandTimeout:   cfg.CommandTimeout,
			DiscoveryTimeout: cfg.DiscoveryTimeout,
		},
		Filter: capture.DefaultFilter(),
		OnTab:  func(ev daemon.TabEvent) { broker.PublishJSON(relay.FeedTab, ev) },
	}, writer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error {
		err := storage.WatchPause(gctx, cfg.LogDir, func(paused bool) {
			broker.PublishJSON(relay.FeedPause, map[string]bool{"paused": paused})
		})
		if err != nil {
			slog.Warn("Pause watcher unavailable", "error", err)
		}
		return nil
	})

	if dashboardAddrFlag != "" {
		ln, err := dashboardListener(cfg, dashboardAddrFlag)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		h := api.NewServer(api.Deps{
			Store:   logstore.New(cfg.LogDir),
			PIDFile: cfg.PIDFile,
			Live:    d,
			Broker:  broker,
		})
		serveHTTP(gctx, g, ln, h)
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, daemon.ErrPersistence) {
			slog.Error("Request log write failed, exiting", "error", err)
		}
		return err
	}
	return nil
}

// serveHTTP runs h on ln inside g and shuts it down when ctx ends. Request
// contexts derive from ctx so open streams end with it.
func serveHTTP(ctx context.Context, g *errgroup.Group, ln net.Listener, h http.Handler) {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		addr := ln.Addr().String()
		slog.Info("dashboard listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("dashboard shutdown failed", "error", err)
		}
		return nil
	})
}

func dashboardListener(cfg *config.Config, addr string) (net.Listener, error) {
	if addr == "" {
		addr = cfg.DashboardAddr
	}
	return netutil.Listen(addr, cfg.DashboardCandidates, cfg.DashboardAutoFallback)
}
