package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spm1001/skill-chrome-log/internal/capture"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/cdp/cdptest"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

func browserStub(m cdptest.Message) (any, bool) {
	switch m.Method {
	case "Target.getTargets":
		return map[string]any{"targetInfos": []map[string]any{
			{"targetId": "T1", "type": "page", "url": "https://app.example/", "title": "App"},
			{"targetId": "W1", "type": "service_worker", "url": "https://app.example/sw.js"},
		}}, true
	case "Target.attachToTarget":
		return map[string]any{"sessionId": "S1"}, true
	case "Network.getResponseBody":
		return map[string]any{"body": `{"ok":true}`, "base64Encoded": false}, true
	default:
		return nil, true
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForCommand(t *testing.T, srv *cdptest.Server, method, sessionID string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m := <-srv.Received():
			if m.Method == method && m.SessionID == sessionID {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s on %q", method, sessionID)
		}
	}
}

func readRecords(t *testing.T, path string) []types.Record {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []types.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec types.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

type harness struct {
	srv     *cdptest.Server
	daemon  *Daemon
	logDir  string
	pidFile string
	cancel  context.CancelFunc
	done    chan error
}

func startDaemon(t *testing.T, sink func(dir string) capture.Sink, opts Options) *harness {
	t.Helper()
	srv := cdptest.New(browserStub)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	h := &harness{
		srv:     srv,
		logDir:  filepath.Join(dir, "logs"),
		pidFile: filepath.Join(dir, ".daemon.pid"),
		done:    make(chan error, 1),
	}
	opts.CDPURL = srv.URL()
	opts.PIDFile = h.pidFile
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 20 * time.Millisecond
	}
	h.daemon = New(opts, sink(h.logDir))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.daemon.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
		}
	})
	return h
}

func writerSink(t *testing.T) func(dir string) capture.Sink {
	return func(dir string) capture.Sink {
		w, err := storage.NewWriter(dir, storage.WriterOptions{})
		if err != nil {
			t.Fatalf("NewWriter() error = %v", err)
		}
		return w
	}
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
		return nil
	}
}

func TestDaemonCapturesRequestLifecycle(t *testing.T) {
	var mu sync.Mutex
	var tabEvents []TabEvent
	h := startDaemon(t, writerSink(t), Options{OnTab: func(ev TabEvent) {
		mu.Lock()
		tabEvents = append(tabEvents, ev)
		mu.Unlock()
	}})

	waitForCommand(t, h.srv, "Network.enable", "S1")
	if _, err := os.Stat(h.pidFile); err != nil {
		t.Fatalf("PID file missing while running: %v", err)
	}
	if !h.daemon.Connected() {
		t.Fatal("Connected() = false; want true")
	}
	if tabs := h.daemon.Tabs(); len(tabs) != 1 || tabs[0].TargetID != "T1" {
		t.Fatalf("Tabs() = %+v; want only T1", tabs)
	}

	emit := func(method string, params any) {
		t.Helper()
		if err := h.srv.Emit(method, "S1", params); err != nil {
			t.Fatalf("Emit(%s) error = %v", method, err)
		}
	}
	emit("Network.requestWillBeSent", map[string]any{
		"requestId": "R1",
		"request": map[string]any{
			"url": "https://api.example/items", "method": "POST",
			"headers": map[string]any{"Content-Type": "application/json"}, "postData": `{"q":1}`,
		},
	})
	emit("Network.requestWillBeSent", map[string]any{
		"requestId": "NOISE",
		"request":   map[string]any{"url": "https://www.google-analytics.com/collect", "method": "GET"},
	})
	emit("Network.responseReceived", map[string]any{
		"requestId": "R1",
		"response":  map[string]any{"status": 201, "mimeType": "application/json", "headers": map[string]any{"X-Id": "7"}},
	})
	emit("Network.loadingFinished", map[string]any{"requestId": "NOISE", "encodedDataLength": 10})
	emit("Network.loadingFinished", map[string]any{"requestId": "R1", "encodedDataLength": 321})

	logPath := filepath.Join(h.logDir, storage.LogFileName)
	waitFor(t, "record on disk", func() bool { return len(readRecords(t, logPath)) == 1 })

	rec := readRecords(t, logPath)[0]
	if rec.ID != "R1" || rec.Method != "POST" || rec.URL != "https://api.example/items" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Tab != (types.TabRef{ID: "T1", URL: "https://app.example/"}) {
		t.Fatalf("tab = %+v", rec.Tab)
	}
	if rec.StatusCode() != 201 || rec.MimeType() != "application/json" || *rec.Size != 321 {
		t.Fatalf("response fields = %d %q %v", rec.StatusCode(), rec.MimeType(), rec.Size)
	}
	if rec.ResponseBody == nil || *rec.ResponseBody != `{"ok":true}` {
		t.Fatalf("ResponseBody = %v", rec.ResponseBody)
	}
	if rec.RequestBody == nil || *rec.RequestBody != `{"q":1}` {
		t.Fatalf("RequestBody = %v", rec.RequestBody)
	}

	if err := h.stop(t); err != nil {
		t.Fatalf("Run() error = %v; want nil on shutdown", err)
	}
	if _, err := os.Stat(h.pidFile); !os.IsNotExist(err) {
		t.Fatalf("PID file still present after shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(tabEvents) == 0 || tabEvents[0].Action != "attached" || tabEvents[0].TargetID != "T1" {
		t.Fatalf("tab events = %+v", tabEvents)
	}
}

func TestDaemonTracksTargetLifecycle(t *testing.T) {
	h := startDaemon(t, writerSink(t), Options{})
	waitForCommand(t, h.srv, "Network.enable", "S1")

	if err := h.srv.Emit("Target.attachedToTarget", "", map[string]any{
		"sessionId":  "S-worker",
		"targetInfo": map[string]any{"targetId": "W9", "type": "worker", "url": "https://app.example/w.js"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.srv.Emit("Target.attachedToTarget", "", map[string]any{
		"sessionId":  "S2",
		"targetInfo": map[string]any{"targetId": "T2", "type": "page", "url": "https://second.example/"},
	}); err != nil {
		t.Fatal(err)
	}
	waitForCommand(t, h.srv, "Network.enable", "S2")
	if n := len(h.daemon.Tabs()); n != 2 {
		t.Fatalf("Tabs() = %d; want 2 (worker ignored)", n)
	}

	if err := h.srv.Emit("Target.targetInfoChanged", "", map[string]any{
		"targetInfo": map[string]any{"targetId": "T2", "type": "page", "url": "https://second.example/next"},
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "navigation", func() bool {
		for _, tab := range h.daemon.Tabs() {
			if tab.TargetID == "T2" && tab.URL == "https://second.example/next" {
				return true
			}
		}
		return false
	})

	if err := h.srv.Emit("Target.detachedFromTarget", "", map[string]any{"sessionId": "S1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "detach", func() bool { return len(h.daemon.Tabs()) == 1 })
}

func TestDaemonIgnoresUnknownAndMalformedEvents(t *testing.T) {
	h := startDaemon(t, writerSink(t), Options{})
	waitForCommand(t, h.srv, "Network.enable", "S1")

	_ = h.srv.Emit("Page.frameNavigated", "S1", map[string]any{"frame": map[string]any{}})
	_ = h.srv.Emit("Network.requestWillBeSent", "S1", map[string]any{"requestId": 42})
	_ = h.srv.Emit("Network.loadingFailed", "S1", map[string]any{"requestId": "never-started"})
	_ = h.srv.Emit("Network.requestWillBeSent", "S1", map[string]any{
		"requestId": "R2", "request": map[string]any{"url": "https://a.example/", "method": "GET"},
	})
	_ = h.srv.Emit("Network.loadingFailed", "S1", map[string]any{"requestId": "R2"})

	logPath := filepath.Join(h.logDir, storage.LogFileName)
	waitFor(t, "failed record", func() bool { return len(readRecords(t, logPath)) == 1 })
	rec := readRecords(t, logPath)[0]
	if rec.ID != "R2" || rec.Error == nil || *rec.Error != "Unknown error" {
		t.Fatalf("record = %+v", rec)
	}
	if !h.daemon.Connected() {
		t.Fatal("connection dropped on malformed event")
	}
}

func TestDaemonPauseDropsRecordsButDrainsLedger(t *testing.T) {
	h := startDaemon(t, writerSink(t), Options{})
	waitForCommand(t, h.srv, "Network.enable", "S1")
	if err := storage.Pause(h.logDir); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	for _, id := range []string{"P1", "P2"} {
		_ = h.srv.Emit("Network.requestWillBeSent", "S1", map[string]any{
			"requestId": id, "request": map[string]any{"url": "https://a.example/" + id, "method": "GET"},
		})
		_ = h.srv.Emit("Network.loadingFailed", "S1", map[string]any{"requestId": id, "errorText": "net::ERR_FAILED"})
	}
	waitFor(t, "ledger drained", func() bool { return h.daemon.InFlight() == 0 })

	logPath := filepath.Join(h.logDir, storage.LogFileName)
	if n := len(readRecords(t, logPath)); n != 0 {
		t.Fatalf("records while paused = %d; want 0", n)
	}

	if err := storage.Resume(h.logDir); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	_ = h.srv.Emit("Network.requestWillBeSent", "S1", map[string]any{
		"requestId": "P3", "request": map[string]any{"url": "https://a.example/P3", "method": "GET"},
	})
	_ = h.srv.Emit("Network.loadingFailed", "S1", map[string]any{"requestId": "P3"})
	waitFor(t, "record after resume", func() bool { return len(readRecords(t, logPath)) == 1 })
}

func TestDaemonReconnectsAfterDrop(t *testing.T) {
	h := startDaemon(t, writerSink(t), Options{})
	select {
	case <-h.srv.Connected():
	case <-time.After(3 * time.Second):
		t.Fatal("no first connection")
	}
	waitForCommand(t, h.srv, "Network.enable", "S1")

	h.srv.DropClients()
	select {
	case <-h.srv.Connected():
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not reconnect")
	}
	waitForCommand(t, h.srv, "Network.enable", "S1")
	waitFor(t, "tab re-registered", func() bool { return len(h.daemon.Tabs()) == 1 })
}

type failingSink struct{ err error }

func (f failingSink) Write(*types.Record) error { return f.err }

func TestDaemonPersistenceFailureIsFatal(t *testing.T) {
	diskFull := errors.New("no space left on device")
	h := startDaemon(t, func(string) capture.Sink { return failingSink{err: diskFull} }, Options{})
	waitForCommand(t, h.srv, "Network.enable", "S1")

	_ = h.srv.Emit("Network.requestWillBeSent", "S1", map[string]any{
		"requestId": "R1", "request": map[string]any{"url": "https://a.example/", "method": "GET"},
	})
	_ = h.srv.Emit("Network.loadingFinished", "S1", map[string]any{"requestId": "R1", "encodedDataLength": 1})

	select {
	case err := <-h.done:
		if !errors.Is(err, ErrPersistence) || !errors.Is(err, diskFull) {
			t.Fatalf("Run() error = %v; want ErrPersistence wrapping disk error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop on persistence failure")
	}
	if _, err := os.Stat(h.pidFile); !os.IsNotExist(err) {
		t.Fatalf("PID file left behind: %v", err)
	}
}

func TestDaemonRetriesUnreachableEndpoint(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil)))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	closed := httptest.NewServer(nil)
	addr := closed.URL
	closed.Close()

	dir := t.TempDir()
	d := New(Options{
		CDPURL:         addr,
		PIDFile:        filepath.Join(dir, ".daemon.pid"),
		ReconnectDelay: 10 * time.Millisecond,
		Conn:           cdp.Options{DiscoveryTimeout: 200 * time.Millisecond},
	}, failingSink{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v; want nil after shutdown", err)
	}

	mu.Lock()
	logs := buf.String()
	mu.Unlock()
	if n := strings.Count(logs, "Cannot reach debug endpoint"); n < 2 {
		t.Fatalf("discovery failures logged %d times; want repeated retries\n%s", n, logs)
	}
	if !strings.Contains(logs, "Daemon stopped") {
		t.Fatalf("missing shutdown log:\n%s", logs)
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
