// Package relay fans daemon events out to dashboard clients over
// Server-Sent Events. A bounded history lets a reconnecting client resume
// from its Last-Event-ID.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const (
	subscriberBufSize = 256
	historySize       = 512
)

// Feed names published by the daemon.
const (
	FeedRequest = "request"
	FeedTab     = "tab"
	FeedPause   = "pause"
)

// Event is one SSE message. Seq is assigned by the broker and increases by
// one per publish across all feeds.
type Event struct {
	Seq     int64
	Feed    string
	Payload string
}

// Broker delivers each published event to every subscriber, without ever
// blocking the publisher.
type Broker struct {
	mu      sync.Mutex
	subs    map[int64]chan Event
	nextSub int64
	seq     int64
	dropped int64

	// history is a ring of the last historySize events; head is the slot
	// the next event goes into.
	history []Event
	head    int
}

func NewBroker() *Broker {
	return &Broker{
		subs:    make(map[int64]chan Event),
		history: make([]Event, 0, historySize),
	}
}

// Subscribe registers a client that wants only new events.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id, _, ch := b.SubscribeAfter(-1)
	return id, ch
}

// SubscribeAfter registers a client and returns the retained events with
// Seq greater than after. Replay and registration happen under one lock, so
// the client sees every event exactly once. after < 0 skips the replay.
func (b *Broker) SubscribeAfter(after int64) (int64, []Event, <-chan Event) {
	ch := make(chan Event, subscriberBufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = ch

	if after < 0 {
		return id, nil, ch
	}
	var replay []Event
	for _, evt := range b.ordered() {
		if evt.Seq > after {
			replay = append(replay, evt)
		}
	}
	return id, replay, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish records payload on feed and offers it to every subscriber. A
// subscriber whose buffer is full misses the event.
func (b *Broker) Publish(feed, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	evt := Event{Seq: b.seq, Feed: feed, Payload: payload}
	if len(b.history) < historySize {
		b.history = append(b.history, evt)
	} else {
		b.history[b.head] = evt
	}
	b.head = (b.head + 1) % historySize

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped++
		}
	}
}

// PublishJSON marshals v and publishes it on feed.
func (b *Broker) PublishJSON(feed string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay marshal failed", "feed", feed, "error", err)
		return
	}
	b.Publish(feed, string(data))
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped for slow clients.
func (b *Broker) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ordered returns the history oldest first. Callers hold mu.
func (b *Broker) ordered() []Event {
	if len(b.history) < historySize {
		return b.history
	}
	out := make([]Event, 0, historySize)
	out = append(out, b.history[b.head:]...)
	return append(out, b.history[:b.head]...)
}
