// Package cdptest provides a fake remote debugging endpoint: a /json/version
// discovery document plus a browser websocket that records inbound commands
// and lets tests push replies and events in any order.
package cdptest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Message is one command received from the client.
type Message struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId,omitempty"`
	Params    json.RawMessage `json:"params"`
}

// Handler may answer a command. When ok is true the server replies with
// result; otherwise the command is left for the test to answer.
type Handler func(m Message) (result any, ok bool)

// Server is a fake browser endpoint. The zero value is not usable; use New.
type Server struct {
	srv     *httptest.Server
	handler Handler

	mu    sync.Mutex
	conns []net.Conn
	wmu   sync.Mutex

	received  chan Message
	connected chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a fake endpoint. handler may be nil.
func New(handler Handler) *Server {
	s := &Server{
		handler:   handler,
		received:  make(chan Message, 256),
		connected: make(chan struct{}, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", s.serveVersion)
	mux.HandleFunc("/devtools/browser/", s.serveWS)
	s.srv = httptest.NewServer(mux)
	return s
}

// URL is the HTTP base to hand to cdp.Dial.
func (s *Server) URL() string { return s.srv.URL }

// WebSocketURL is the address advertised by /json/version.
func (s *Server) WebSocketURL() string {
	return "ws://" + strings.TrimPrefix(s.srv.URL, "http://") + "/devtools/browser/fake"
}

// Received yields every command the client sent, in order.
func (s *Server) Received() <-chan Message { return s.received }

// Connected receives a value each time a client completes the upgrade.
func (s *Server) Connected() <-chan struct{} { return s.connected }

func (s *Server) serveVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"Browser":              "FakeChrome/1.0",
		"webSocketDebuggerUrl": s.WebSocketURL(),
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	select {
	case s.connected <- struct{}{}:
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			if s.handler != nil {
				if result, ok := s.handler(m); ok {
					_ = s.Reply(m.ID, result)
				}
			}
			select {
			case s.received <- m:
			default:
			}
		}
	}()
}

// Reply answers command id with result.
func (s *Server) Reply(id int64, result any) error {
	if result == nil {
		result = struct{}{}
	}
	return s.send(map[string]any{"id": id, "result": result})
}

// ReplyError answers command id with a protocol error.
func (s *Server) ReplyError(id int64, code int64, message string) error {
	return s.send(map[string]any{
		"id":    id,
		"error": map[string]any{"code": code, "message": message},
	})
}

// Emit pushes an event, scoped to sessionID when non-empty.
func (s *Server) Emit(method, sessionID string, params any) error {
	msg := map[string]any{"method": method, "params": params}
	if sessionID != "" {
		msg["sessionId"] = sessionID
	}
	return s.send(msg)
}

// SendRaw writes data as a text frame to every connected client.
func (s *Server) SendRaw(data []byte) error {
	s.mu.Lock()
	conns := append([]net.Conn(nil), s.conns...)
	s.mu.Unlock()
	if len(conns) == 0 {
		return fmt.Errorf("cdptest: no client connected")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	var firstErr error
	for _, c := range conns {
		if err := wsutil.WriteServerText(c, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// DropClients closes every websocket without stopping the HTTP server, the
// way a browser restart looks to the client.
func (s *Server) DropClients() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Close drops clients and stops the server. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.DropClients()
		s.srv.Close()
		s.wg.Wait()
	})
}
