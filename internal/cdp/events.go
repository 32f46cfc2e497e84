package cdp

import (
	"encoding/json"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
)

// EventKind is the closed set of protocol events the daemon reacts to.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindRequestWillBeSent
	KindResponseReceived
	KindLoadingFinished
	KindLoadingFailed
	KindAttachedToTarget
	KindDetachedFromTarget
	KindTargetInfoChanged
)

var eventKinds = map[cdproto.MethodType]EventKind{
	cdproto.EventNetworkRequestWillBeSent: KindRequestWillBeSent,
	cdproto.EventNetworkResponseReceived:  KindResponseReceived,
	cdproto.EventNetworkLoadingFinished:   KindLoadingFinished,
	cdproto.EventNetworkLoadingFailed:     KindLoadingFailed,
	cdproto.EventTargetAttachedToTarget:   KindAttachedToTarget,
	cdproto.EventTargetDetachedFromTarget: KindDetachedFromTarget,
	cdproto.EventTargetTargetInfoChanged:  KindTargetInfoChanged,
}

// KindOf maps a method name to its EventKind. Unrecognised methods map to
// KindUnknown and are ignored by dispatch.
func KindOf(method string) EventKind {
	if k, ok := eventKinds[cdproto.MethodType(method)]; ok {
		return k
	}
	return KindUnknown
}

func (k EventKind) String() string {
	switch k {
	case KindRequestWillBeSent:
		return "request_will_be_sent"
	case KindResponseReceived:
		return "response_received"
	case KindLoadingFinished:
		return "loading_finished"
	case KindLoadingFailed:
		return "loading_failed"
	case KindAttachedToTarget:
		return "attached_to_target"
	case KindDetachedFromTarget:
		return "detached_from_target"
	case KindTargetInfoChanged:
		return "target_info_changed"
	default:
		return "unknown"
	}
}

// Event is one inbound protocol event.
type Event struct {
	Kind      EventKind
	Method    string
	SessionID target.SessionID
	Params    json.RawMessage
}

// RequestWillBeSent is the subset of Network.requestWillBeSent we record.
type RequestWillBeSent struct {
	RequestID network.RequestID `json:"requestId"`
	Request   struct {
		URL             string          `json:"url"`
		Method          string          `json:"method"`
		Headers         network.Headers `json:"headers"`
		PostData        string          `json:"postData"`
		HasPostData     bool            `json:"hasPostData"`
		PostDataEntries []struct {
			Bytes string `json:"bytes"`
		} `json:"postDataEntries"`
	} `json:"request"`
}

// ResponseReceived is the subset of Network.responseReceived we record.
type ResponseReceived struct {
	RequestID network.RequestID `json:"requestId"`
	Response  struct {
		Status   int             `json:"status"`
		MimeType string          `json:"mimeType"`
		Headers  network.Headers `json:"headers"`
	} `json:"response"`
}

// LoadingFinished is the subset of Network.loadingFinished we record.
type LoadingFinished struct {
	RequestID         network.RequestID `json:"requestId"`
	EncodedDataLength float64           `json:"encodedDataLength"`
}

// LoadingFailed is the subset of Network.loadingFailed we record.
type LoadingFailed struct {
	RequestID network.RequestID `json:"requestId"`
	ErrorText string            `json:"errorText"`
	Canceled  bool              `json:"canceled"`
}

// Decode unmarshals the event's params into v.
func (e Event) Decode(v any) error {
	if len(e.Params) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Params, v)
}
