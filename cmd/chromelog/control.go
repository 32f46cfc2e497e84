package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint, daemon, capture and log status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, discoverErr := cdp.DiscoverWebSocketURL(cmd.Context(), cfg.CDPURL(), cfg.DiscoveryTimeout)
		pid, running := storage.DaemonRunning(cfg.PIDFile)
		stats, err := logstore.New(cfg.LogDir).Stats()
		if err != nil {
			return err
		}
		writeStatus(cmd.OutOrStdout(), statusReport{
			CDPURL:    cfg.CDPURL(),
			ChromeUp:  discoverErr == nil,
			DaemonPID: pid,
			DaemonUp:  running,
			Stats:     stats,
			LogDir:    cfg.LogDir,
		})
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop writing records until resumed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := storage.Pause(cfg.LogDir); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Capture paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:     "resume",
	Aliases: []string{"unpause"},
	Short:   "Resume writing records",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := storage.Resume(cfg.LogDir); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Capture resumed")
		return nil
	},
}

var (
	tailN    int
	jsonOut  bool
	listOpts logstore.Query
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, logstore.Query{Limit: tailN}, "No requests captured yet")
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, listOpts, "No matching requests")
	},
}

var (
	showHeaders bool
	showBody    bool
)

var showCmd = &cobra.Command{
	Use:   "show <id-prefix>",
	Short: "Show one request in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rec, err := logstore.New(cfg.LogDir).Get(args[0])
		if errors.Is(err, logstore.ErrNotFound) {
			return fmt.Errorf("request %s not found", args[0])
		}
		if err != nil {
			return err
		}
		_, _ = io.WriteString(cmd.OutOrStdout(), formatDetail(rec, showHeaders, showBody)+"\n")
		return nil
	},
}

func init() {
	tailCmd.Flags().IntVarP(&tailN, "count", "n", 20, "Number of requests")
	tailCmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "JSON output")

	listCmd.Flags().StringVarP(&listOpts.URL, "filter", "f", "", "URL substring")
	listCmd.Flags().StringVarP(&listOpts.Method, "method", "m", "", "HTTP method")
	listCmd.Flags().StringVarP(&listOpts.Status, "status", "s", "", "Status code or class (200, 4xx)")
	listCmd.Flags().StringVarP(&listOpts.Tab, "tab", "t", "", "Tab URL substring")
	listCmd.Flags().IntVarP(&listOpts.Limit, "limit", "l", 50, "Maximum results")
	listCmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "JSON output")

	showCmd.Flags().BoolVarP(&showHeaders, "headers", "H", false, "Show headers")
	showCmd.Flags().BoolVarP(&showBody, "body", "b", false, "Show bodies")
}

func runList(cmd *cobra.Command, q logstore.Query, empty string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	recs, err := logstore.New(cfg.LogDir).List(q)
	if err != nil {
		return err
	}
	return writeList(cmd.OutOrStdout(), recs, jsonOut, empty)
}

func writeList(w io.Writer, recs []types.Record, asJSON bool, empty string) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}
	var b strings.Builder
	for i := range recs {
		b.WriteString(formatSummary(&recs[i]))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
