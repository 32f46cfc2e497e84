package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/tidwall/gjson"
)

const (
	DefaultCommandTimeout   = 10 * time.Second
	DefaultDiscoveryTimeout = 5 * time.Second

	eventBufSize = 1024
)

// Options tunes a Conn. Zero values fall back to the defaults above.
type Options struct {
	CommandTimeout   time.Duration
	DiscoveryTimeout time.Duration
}

// Conn is a browser-level CDP connection. It owns the websocket and the
// command id space: every outgoing command gets a strictly increasing id and
// a single-use reply channel, and the read loop routes replies by id while
// events are queued in arrival order.
type Conn struct {
	wsURL   string
	timeout time.Duration

	mu   sync.Mutex // serialises writes and guards conn
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex

	events    chan Event
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial resolves the websocket URL through the discovery call on httpBase and
// opens the connection. The read loop starts immediately.
func Dial(ctx context.Context, httpBase string, opts Options) (*Conn, error) {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = DefaultDiscoveryTimeout
	}

	wsURL, err := DiscoverWebSocketURL(ctx, httpBase, opts.DiscoveryTimeout)
	if err != nil {
		return nil, err
	}

	slog.Debug("cdp connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "dial "+wsURL, err)
	}

	c := &Conn{
		wsURL:   wsURL,
		timeout: opts.CommandTimeout,
		conn:    conn,
		pending: make(map[int64]chan json.RawMessage),
		events:  make(chan Event, eventBufSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// URL returns the websocket URL the connection was opened against.
func (c *Conn) URL() string { return c.wsURL }

// Events delivers protocol events in arrival order. The channel is closed
// when the connection ends.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed once the read loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the read loop exited, or nil while it is running.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears the socket down. Pending commands fail with ErrConnClosed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.mu.Lock()
		err = c.conn.Close()
		c.mu.Unlock()
	})
	<-c.done
	return err
}

// readLoop classifies each inbound frame: replies go to their waiter,
// events are queued, anything unparseable is dropped.
func (c *Conn) readLoop() {
	defer func() {
		c.closeAllPending()
		close(c.events)
		close(c.done)
	}()

	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			slog.Debug("cdp read loop exit", "error", err)
			return
		}

		if !gjson.ValidBytes(data) {
			continue
		}
		if id := gjson.GetBytes(data, "id"); id.Exists() {
			c.resolve(id.Int(), data)
			continue
		}
		method := gjson.GetBytes(data, "method")
		if !method.Exists() {
			continue
		}
		ev := Event{
			Method:    method.String(),
			SessionID: target.SessionID(gjson.GetBytes(data, "sessionId").String()),
		}
		ev.Kind = KindOf(ev.Method)
		if params := gjson.GetBytes(data, "params"); params.Exists() {
			ev.Params = json.RawMessage(params.Raw)
		}
		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}

func (c *Conn) resolve(id int64, data []byte) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		slog.Debug("cdp reply without waiter", "id", id)
		return
	}
	ch <- json.RawMessage(data)
}

func (c *Conn) closeAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) deletePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Conn) pendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// Send issues method with params, scoped to sessionID when non-empty, and
// waits for the matching reply. It returns the reply's "result" object.
// Expiry of the command timeout yields ErrCommandTimeout and removes the
// waiter; the connection itself is left alone.
func (c *Conn) Send(ctx context.Context, sessionID target.SessionID, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, fmt.Errorf("%s: %w", method, ErrConnClosed)
	default:
	}

	id := c.seq.Add(1)
	req := struct {
		ID        int64            `json:"id"`
		Method    string           `json:"method"`
		SessionID target.SessionID `json:"sessionId,omitempty"`
		Params    any              `json:"params"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params}
	if req.Params == nil {
		req.Params = struct{}{}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cdp: marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.mu.Lock()
	err = wsutil.WriteClientText(c.conn, data)
	c.mu.Unlock()
	if err != nil {
		c.deletePending(id)
		return nil, fmt.Errorf("cdp: send %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", method, ErrConnClosed)
		}
		return unwrapReply(method, resp)
	case <-c.done:
		// The read loop may have drained pending before this waiter was
		// registered; a reply that raced the shutdown still wins.
		select {
		case resp, ok := <-ch:
			if ok {
				return unwrapReply(method, resp)
			}
		default:
			c.deletePending(id)
		}
		return nil, fmt.Errorf("%s: %w", method, ErrConnClosed)
	case <-timer.C:
		c.deletePending(id)
		return nil, fmt.Errorf("%s after %s: %w", method, c.timeout, ErrCommandTimeout)
	case <-ctx.Done():
		c.deletePending(id)
		return nil, ctx.Err()
	}
}

func unwrapReply(method string, resp json.RawMessage) (json.RawMessage, error) {
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int64  `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return nil, newError(CodeProtocol, "unmarshal reply to "+method, err)
	}
	if envelope.Error != nil {
		return nil, &CommandError{Method: method, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return envelope.Result, nil
}
