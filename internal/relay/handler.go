package relay

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const heartbeatInterval = 15 * time.Second

// SSEHandler streams broker events. ?feeds=request,tab restricts the feeds;
// a Last-Event-ID header (or ?after=) replays retained events newer than
// that id before live ones.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		wants := feedFilter(r.URL.Query().Get("feeds"))
		after := resumePoint(r)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		id, replay, ch := broker.SubscribeAfter(after)
		defer broker.Unsubscribe(id)

		bw := bufio.NewWriter(w)
		send := func() bool {
			if err := bw.Flush(); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		_, _ = bw.WriteString(": connected\n\n")
		for _, evt := range replay {
			if wants(evt.Feed) {
				writeEvent(bw, evt)
			}
		}
		if !send() {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				_, _ = bw.WriteString(": ping\n\n")
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !wants(evt.Feed) {
					continue
				}
				writeEvent(bw, evt)
			}
			if !send() {
				return
			}
		}
	}
}

func writeEvent(bw *bufio.Writer, evt Event) {
	_, _ = bw.WriteString("id: " + strconv.FormatInt(evt.Seq, 10) + "\n")
	_, _ = bw.WriteString("event: " + evt.Feed + "\n")
	_, _ = bw.WriteString("data: " + evt.Payload + "\n\n")
}

func feedFilter(q string) func(string) bool {
	if q == "" {
		return func(string) bool { return true }
	}
	set := make(map[string]bool)
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = true
		}
	}
	return func(feed string) bool { return set[feed] }
}

// resumePoint reads the last id the client saw, or -1 for a fresh client.
func resumePoint(r *http.Request) int64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("after")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
