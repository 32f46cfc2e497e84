package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/spm1001/skill-chrome-log/internal/cdp"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

const defaultFailedError = "Unknown error"

// BodyFetcher retrieves a finished response body from the session that
// observed the request. *cdp.Conn satisfies it.
type BodyFetcher interface {
	GetResponseBody(ctx context.Context, sessionID target.SessionID, requestID network.RequestID) (cdp.ResponseBody, error)
}

// Sink receives completed records. Errors are returned to the caller of the
// finalizing event.
type Sink interface {
	Write(rec *types.Record) error
}

type pendingRequest struct {
	sessionID target.SessionID
	started   time.Time
	record    types.Record
}

// Ledger assembles in-flight requests from Network events and hands each
// one to the sink exactly once when it finishes or fails. Events that name
// an unknown request id are ignored: early filtering drops entries before
// their later events arrive.
type Ledger struct {
	tabs         types.TabInfoProvider
	filter       *Filter
	fetcher      BodyFetcher
	sink         Sink
	maxBodyBytes int
	now          func() time.Time

	pending   map[network.RequestID]*pendingRequest
	pendingMu sync.Mutex
}

// NewLedger wires a ledger. fetcher may be nil, in which case bodies are
// never captured.
func NewLedger(tabs types.TabInfoProvider, filter *Filter, fetcher BodyFetcher, sink Sink, maxBodyBytes int) *Ledger {
	if filter == nil {
		filter = DefaultFilter()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Ledger{
		tabs:         tabs,
		filter:       filter,
		fetcher:      fetcher,
		sink:         sink,
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
		pending:      make(map[network.RequestID]*pendingRequest),
	}
}

// Len reports how many requests are in flight.
func (l *Ledger) Len() int {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	return len(l.pending)
}

// OnRequestWillBeSent opens an entry unless the URL is noise. The owning
// tab is snapshotted now so later navigation does not rewrite history.
func (l *Ledger) OnRequestWillBeSent(sessionID target.SessionID, ev *cdp.RequestWillBeSent) bool {
	if ev == nil || ev.RequestID == "" {
		return false
	}
	if l.filter.SkipURL(ev.Request.URL) {
		return false
	}

	var tab types.TabRef
	if l.tabs != nil {
		if info, ok := l.tabs.BySession(string(sessionID)); ok {
			tab = types.TabRef{ID: info.TargetID, URL: info.URL}
		}
	}

	now := l.now()
	p := &pendingRequest{
		sessionID: sessionID,
		started:   now,
		record: types.Record{
			ID:             string(ev.RequestID),
			Timestamp:      now.UTC(),
			Tab:            tab,
			Method:         ev.Request.Method,
			URL:            ev.Request.URL,
			RequestHeaders: headerMapToStringMap(ev.Request.Headers),
			RequestBody:    requestBody(ev),
		},
	}

	l.pendingMu.Lock()
	l.pending[ev.RequestID] = p
	l.pendingMu.Unlock()
	return true
}

// OnResponseReceived merges status, MIME and headers. A binary MIME type
// removes the entry on the spot.
func (l *Ledger) OnResponseReceived(ev *cdp.ResponseReceived) {
	if ev == nil {
		return
	}

	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	p, ok := l.pending[ev.RequestID]
	if !ok {
		return
	}
	if l.filter.SkipMime(ev.Response.MimeType) {
		delete(l.pending, ev.RequestID)
		return
	}

	status := ev.Response.Status
	mime := ev.Response.MimeType
	p.record.Status = &status
	p.record.Mime = &mime
	p.record.ResponseHeaders = headerMapToStringMap(ev.Response.Headers)
}

// OnLoadingFinished is the synchronous form of TakeFinished followed by
// Complete: it takes the entry, fetches its body and writes it before
// returning. The daemon uses the two-step form so body fetches do not
// block the event loop.
func (l *Ledger) OnLoadingFinished(ctx context.Context, ev *cdp.LoadingFinished) error {
	c, ok := l.TakeFinished(ev)
	if !ok {
		return nil
	}
	return c.Complete(ctx)
}

// Completion is a finished request that has left the ledger but has not
// been written yet.
type Completion struct {
	l *Ledger
	p *pendingRequest
}

// TakeFinished removes the entry for ev and attaches its final size. The
// entry is gone before any body fetch starts, so a duplicate finish cannot
// produce a second record. ok is false for unknown ids.
func (l *Ledger) TakeFinished(ev *cdp.LoadingFinished) (*Completion, bool) {
	if ev == nil {
		return nil, false
	}
	p, ok := l.take(ev.RequestID)
	if !ok {
		return nil, false
	}
	size := int64(ev.EncodedDataLength)
	p.record.Size = &size
	return &Completion{l: l, p: p}, true
}

// RequestID names the completed request.
func (c *Completion) RequestID() string { return c.p.record.ID }

// Complete fetches the body unless the MIME type is excluded and hands the
// record to the sink. Body failures never block the write.
func (c *Completion) Complete(ctx context.Context) error {
	if c.l.filter.SkipMime(c.p.record.MimeType()) {
		return nil
	}
	if body, ok := c.l.fetchBody(ctx, c.p); ok {
		c.p.record.ResponseBody = &body
	}
	return c.l.persist(&c.p.record)
}

// OnLoadingFailed records the error text and writes the entry without a
// body.
func (l *Ledger) OnLoadingFailed(ev *cdp.LoadingFailed) error {
	if ev == nil {
		return nil
	}
	p, ok := l.take(ev.RequestID)
	if !ok {
		return nil
	}

	errText := ev.ErrorText
	if errText == "" {
		errText = defaultFailedError
	}
	p.record.Error = &errText
	return l.persist(&p.record)
}

// Sweep drops entries started before cutoff and returns how many were
// dropped. Requests whose session went away never see a terminal event.
func (l *Ledger) Sweep(cutoff time.Time) int {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()

	n := 0
	for id, p := range l.pending {
		if p.started.Before(cutoff) {
			delete(l.pending, id)
			n++
		}
	}
	return n
}

// Reset forgets every in-flight request. Request ids do not survive a
// reconnect.
func (l *Ledger) Reset() {
	l.pendingMu.Lock()
	l.pending = make(map[network.RequestID]*pendingRequest)
	l.pendingMu.Unlock()
}

func (l *Ledger) take(id network.RequestID) (*pendingRequest, bool) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	p, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	return p, ok
}

func (l *Ledger) fetchBody(ctx context.Context, p *pendingRequest) (string, bool) {
	if l.fetcher == nil {
		return "", false
	}
	res, err := l.fetcher.GetResponseBody(ctx, p.sessionID, network.RequestID(p.record.ID))
	if err != nil {
		if !cdp.IsResourceMissing(err) {
			slog.Debug("Failed to get response body", "request_id", p.record.ID, "error", err)
		}
		return "", false
	}
	return DecodeBody(res.Body, res.Base64Encoded, l.maxBodyBytes)
}

func (l *Ledger) persist(rec *types.Record) error {
	if l.sink == nil {
		return nil
	}
	if err := l.sink.Write(rec); err != nil {
		return fmt.Errorf("persist request %s: %w", rec.ID, err)
	}
	return nil
}

func requestBody(ev *cdp.RequestWillBeSent) *string {
	if ev.Request.PostData != "" {
		body := ev.Request.PostData
		return &body
	}
	if len(ev.Request.PostDataEntries) == 0 {
		return nil
	}

	var decodedParts []byte
	for _, entry := range ev.Request.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			decodedParts = append(decodedParts, []byte(entry.Bytes)...)
		} else {
			decodedParts = append(decodedParts, decoded...)
		}
	}
	if len(decodedParts) == 0 {
		return nil
	}
	body := string(decodedParts)
	return &body
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		switch s := v.(type) {
		case string:
			result[k] = s
		case nil:
		default:
			result[k] = fmt.Sprint(s)
		}
	}
	return result
}
