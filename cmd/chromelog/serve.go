package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spm1001/skill-chrome-log/internal/api"
	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"golang.org/x/sync/errgroup"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over an existing log",
	Long: `Serves the REST dashboard without capturing. The live stream is only
available from "chromelog daemon --dashboard".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Bind address (default $CHROMELOG_DASHBOARD_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.LogLevel, serveLogFile(cfg)); err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}

	ln, err := dashboardListener(cfg, serveAddrFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := api.NewServer(api.Deps{Store: logstore.New(cfg.LogDir), PIDFile: cfg.PIDFile})
	g, gctx := errgroup.WithContext(ctx)
	serveHTTP(gctx, g, ln, h)
	return g.Wait()
}
