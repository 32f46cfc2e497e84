// Package daemon supervises the browser connection: it reconnects after
// failures with a fixed delay, owns the PID file, and runs one capture
// session per connection.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/spm1001/skill-chrome-log/internal/capture"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

// ErrPersistence marks a failure to write the request log. It ends Run:
// durable logging is the daemon's only job, so it exits and relies on the
// supervisor to restart it.
var ErrPersistence = errors.New("daemon: persistence failed")

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultStaleAfter     = 10 * time.Minute

	sweepInterval = time.Minute
)

// TabEvent describes a tab attach, detach or navigation.
type TabEvent struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
	URL       string `json:"url"`
}

// Options configures a Daemon.
type Options struct {
	CDPURL         string
	PIDFile        string
	ReconnectDelay time.Duration
	MaxBodyBytes   int
	StaleAfter     time.Duration
	Conn           cdp.Options
	Filter         *capture.Filter
	// OnTab, if set, observes tab lifecycle changes.
	OnTab func(TabEvent)
}

// Daemon captures network traffic from every page of one browser.
type Daemon struct {
	opts      Options
	sink      capture.Sink
	sessions  *cdp.SessionRegistry
	connected atomic.Bool
	inFlight  atomic.Pointer[capture.Ledger]
}

// New returns a Daemon that hands completed records to sink.
func New(opts Options, sink capture.Sink) *Daemon {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Filter == nil {
		opts.Filter = capture.DefaultFilter()
	}
	return &Daemon{
		opts:     opts,
		sink:     sink,
		sessions: cdp.NewSessionRegistry(),
	}
}

// Connected reports whether a browser connection is currently up.
func (d *Daemon) Connected() bool { return d.connected.Load() }

// Tabs returns the currently attached page sessions.
func (d *Daemon) Tabs() []types.TabInfo { return d.sessions.List() }

// InFlight returns the number of requests awaiting a terminal event.
func (d *Daemon) InFlight() int {
	if l := d.inFlight.Load(); l != nil {
		return l.Len()
	}
	return 0
}

// Run writes the PID file and keeps a capture session alive until ctx is
// done. It returns nil on shutdown and a wrapped ErrPersistence when the
// log cannot be written. The PID file is removed on every return path.
func (d *Daemon) Run(ctx context.Context) error {
	if err := storage.WritePID(d.opts.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := storage.RemovePID(d.opts.PIDFile); err != nil {
			slog.Warn("Failed to remove PID file", "path", d.opts.PIDFile, "error", err)
		}
		slog.Info("Daemon stopped")
	}()
	slog.Info("Daemon started", "pid", os.Getpid(), "cdp_url", d.opts.CDPURL)

	for {
		err := d.runSession(ctx)
		if errors.Is(err, ErrPersistence) {
			slog.Error("Request log write failed, stopping", "error", err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		logConnectionError(d.opts.CDPURL, err)

		slog.Info("Reconnecting", "delay", d.opts.ReconnectDelay)
		timer := time.NewTimer(d.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func logConnectionError(cdpURL string, err error) {
	if err == nil {
		return
	}
	var coded *cdp.CodedError
	if errors.As(err, &coded) && coded.Code == cdp.CodeDiscoveryFailed {
		slog.Error("Cannot reach debug endpoint", "url", cdpURL, "error", err,
			"hint", "start Chrome with --remote-debugging-port")
		return
	}
	slog.Error("Connection error", "error", err)
}

func persistErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
