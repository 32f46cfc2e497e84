package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/target"
	"github.com/spm1001/skill-chrome-log/internal/capture"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"golang.org/x/sync/errgroup"
)

var errDisconnected = errors.New("browser disconnected")

// session is one connection's worth of capture state. Sessions and
// in-flight requests do not outlive the connection they were seen on.
type session struct {
	d      *Daemon
	conn   *cdp.Conn
	ledger *capture.Ledger
	g      *errgroup.Group
	ctx    context.Context
}

func (d *Daemon) runSession(ctx context.Context) error {
	conn, err := cdp.Dial(ctx, d.opts.CDPURL, d.opts.Conn)
	if err != nil {
		return err
	}
	slog.Info("Connected to browser", "ws_url", conn.URL())

	d.sessions.Reset()
	ledger := capture.NewLedger(d.sessions, d.opts.Filter, conn, d.sink, d.opts.MaxBodyBytes)
	d.inFlight.Store(ledger)
	d.connected.Store(true)
	defer func() {
		d.connected.Store(false)
		d.sessions.Reset()
	}()

	g, gctx := errgroup.WithContext(ctx)
	s := &session{d: d, conn: conn, ledger: ledger, g: g, ctx: gctx}

	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(s.consume)
	g.Go(s.bootstrap)
	g.Go(s.sweep)

	return g.Wait()
}

// consume dispatches events in arrival order until the connection ends.
func (s *session) consume() error {
	for ev := range s.conn.Events() {
		if err := s.dispatch(ev); err != nil {
			return err
		}
	}
	if s.ctx.Err() != nil {
		return nil
	}
	if err := s.conn.Err(); err != nil {
		return fmt.Errorf("%w: %w", errDisconnected, err)
	}
	return errDisconnected
}

func (s *session) dispatch(ev cdp.Event) error {
	switch ev.Kind {
	case cdp.KindRequestWillBeSent:
		var p cdp.RequestWillBeSent
		if !decode(ev, &p) {
			return nil
		}
		s.ledger.OnRequestWillBeSent(ev.SessionID, &p)

	case cdp.KindResponseReceived:
		var p cdp.ResponseReceived
		if !decode(ev, &p) {
			return nil
		}
		s.ledger.OnResponseReceived(&p)

	case cdp.KindLoadingFinished:
		var p cdp.LoadingFinished
		if !decode(ev, &p) {
			return nil
		}
		// The body fetch is a command round trip, so it cannot run on the
		// event loop that delivers its reply.
		if c, ok := s.ledger.TakeFinished(&p); ok {
			s.g.Go(func() error {
				return persistErr(c.Complete(s.ctx))
			})
		}

	case cdp.KindLoadingFailed:
		var p cdp.LoadingFailed
		if !decode(ev, &p) {
			return nil
		}
		return persistErr(s.ledger.OnLoadingFailed(&p))

	case cdp.KindAttachedToTarget:
		var p target.EventAttachedToTarget
		if !decode(ev, &p) {
			return nil
		}
		if s.d.sessions.Attach(p.SessionID, p.TargetInfo) {
			s.onAttached(p.SessionID, p.TargetInfo)
			s.g.Go(func() error {
				s.enableNetwork(p.SessionID)
				return nil
			})
		}

	case cdp.KindDetachedFromTarget:
		var p target.EventDetachedFromTarget
		if !decode(ev, &p) {
			return nil
		}
		if tab, ok := s.d.sessions.Detach(p.SessionID); ok {
			slog.Info("Detached from tab", "url", truncateURL(tab.URL, 60), "session", storage.ShortID(tab.SessionID))
			s.notify("detached", tab.SessionID, tab.TargetID, tab.URL)
		}

	case cdp.KindTargetInfoChanged:
		var p target.EventTargetInfoChanged
		if !decode(ev, &p) {
			return nil
		}
		if tab, ok := s.d.sessions.UpdateTarget(p.TargetInfo); ok {
			slog.Debug("Target navigated", "url", truncateURL(tab.URL, 60), "session", storage.ShortID(tab.SessionID))
			s.notify("navigated", tab.SessionID, tab.TargetID, tab.URL)
		}

	default:
		// Other domains' events are not ours to track.
	}
	return nil
}

// bootstrap turns on auto-attach and target discovery, then attaches to
// every page that was already open.
func (s *session) bootstrap() error {
	ctx := s.ctx
	if err := s.conn.SetAutoAttach(ctx); err != nil {
		return fmt.Errorf("set auto-attach: %w", err)
	}
	if err := s.conn.SetDiscoverTargets(ctx); err != nil {
		return fmt.Errorf("set discover targets: %w", err)
	}
	infos, err := s.conn.GetTargets(ctx)
	if err != nil {
		return fmt.Errorf("get targets: %w", err)
	}

	for _, info := range infos {
		if info == nil || info.Type != "page" || s.d.sessions.HasTarget(info.TargetID) {
			continue
		}
		sessionID, err := s.conn.AttachToTarget(ctx, info.TargetID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Failed to attach", "url", truncateURL(info.URL, 40), "error", err)
			continue
		}
		// The attach also arrives as an event; whichever registers first
		// enables capture.
		if s.d.sessions.Attach(sessionID, info) {
			s.onAttached(sessionID, info)
			s.enableNetwork(sessionID)
		}
	}

	slog.Info("Attached to tabs, capturing", "tabs", s.d.sessions.Count())
	return nil
}

// sweep drops requests that never saw a terminal event.
func (s *session) sweep() error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.ledger.Sweep(time.Now().Add(-s.d.opts.StaleAfter)); n > 0 {
				slog.Debug("Dropped stale requests", "count", n)
			}
		}
	}
}

// enableNetwork is best effort: a failure for one session is logged and
// does not affect the others.
func (s *session) enableNetwork(sessionID target.SessionID) {
	if err := s.conn.EnableNetwork(s.ctx, sessionID); err != nil {
		if s.ctx.Err() == nil {
			slog.Error("Failed to enable network", "session", storage.ShortID(string(sessionID)), "error", err)
		}
		return
	}
	slog.Debug("Network enabled", "session", storage.ShortID(string(sessionID)))
}

func (s *session) onAttached(sessionID target.SessionID, info *target.Info) {
	slog.Info("Attached to tab", "url", truncateURL(info.URL, 60), "session", storage.ShortID(string(sessionID)))
	s.notify("attached", string(sessionID), string(info.TargetID), info.URL)
}

func (s *session) notify(action, sessionID, targetID, url string) {
	if s.d.opts.OnTab == nil {
		return
	}
	s.d.opts.OnTab(TabEvent{Action: action, SessionID: sessionID, TargetID: targetID, URL: url})
}

func decode(ev cdp.Event, v any) bool {
	if err := ev.Decode(v); err != nil {
		slog.Debug("Dropping malformed event", "method", ev.Method, "error", err)
		return false
	}
	return true
}

// truncateURL shortens url to at most n bytes for log lines, backing off
// to a rune boundary.
func truncateURL(url string, n int) string {
	url = strings.TrimSpace(url)
	if len(url) <= n {
		return url
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(url[cut]) {
		cut--
	}
	return url[:cut] + "..."
}
