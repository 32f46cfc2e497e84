package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/storage"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

// DaemonStatus describes the capture process.
type DaemonStatus struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	Connected *bool  `json:"connected,omitempty" doc:"Only reported when the daemon runs in this process"`
	Tabs      []Tab  `json:"tabs,omitempty"`
	InFlight  *int   `json:"inFlight,omitempty"`
	LogDir    string `json:"logDir"`
}

// Tab is an attached page session.
type Tab struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
}

// Summary is the list view of a record.
type Summary struct {
	ID     string    `json:"id"`
	TS     time.Time `json:"ts"`
	Method string    `json:"method"`
	Status int       `json:"status"`
	URL    string    `json:"url"`
	TabURL string    `json:"tabUrl"`
	Size   *int64    `json:"size,omitempty"`
	Error  *string   `json:"error,omitempty"`
}

func summarize(rec *types.Record) Summary {
	return Summary{
		ID:     rec.ID,
		TS:     rec.Timestamp,
		Method: rec.Method,
		Status: rec.StatusCode(),
		URL:    rec.URL,
		TabURL: rec.Tab.URL,
		Size:   rec.Size,
		Error:  rec.Error,
	}
}

func registerStatusHandlers(api huma.API, deps Deps) {
	type statusOutput struct {
		Body struct {
			Daemon DaemonStatus   `json:"daemon"`
			Log    logstore.Stats `json:"log"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Daemon and log status", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			stats, err := deps.Store.Stats()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Log = stats
			out.Body.Daemon.LogDir = deps.Store.Dir()
			if deps.PIDFile != "" {
				out.Body.Daemon.PID, out.Body.Daemon.Running = storage.DaemonRunning(deps.PIDFile)
			}
			if deps.Live != nil {
				connected := deps.Live.Connected()
				inFlight := deps.Live.InFlight()
				out.Body.Daemon.Connected = &connected
				out.Body.Daemon.InFlight = &inFlight
				for _, t := range deps.Live.Tabs() {
					out.Body.Daemon.Tabs = append(out.Body.Daemon.Tabs, Tab{SessionID: t.SessionID, TargetID: t.TargetID, URL: t.URL, Title: t.Title})
				}
			}
			return out, nil
		})
}

func registerRequestHandlers(api huma.API, deps Deps) {
	type listOutput struct {
		Body struct {
			Requests []Summary `json:"requests"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-requests", Method: http.MethodGet, Path: "/api/v1/requests", Summary: "List captured requests, newest first", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			URL    string `query:"url" doc:"Case-insensitive URL substring"`
			Method string `query:"method" doc:"HTTP method"`
			Status string `query:"status" doc:"Exact status code or class such as 4xx"`
			Tab    string `query:"tab" doc:"Case-insensitive tab URL substring"`
			Limit  int    `query:"limit" default:"50" minimum:"0" doc:"Maximum results, 0 for all"`
			Offset int    `query:"offset" minimum:"0"`
		}) (*listOutput, error) {
			recs, err := deps.Store.List(logstore.Query{
				URL:    input.URL,
				Method: input.Method,
				Status: input.Status,
				Tab:    input.Tab,
				Limit:  input.Limit,
				Offset: input.Offset,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Requests = make([]Summary, 0, len(recs))
			for i := range recs {
				out.Body.Requests = append(out.Body.Requests, summarize(&recs[i]))
			}
			return out, nil
		})

	type recordOutput struct {
		Body *types.Record
	}

	huma.Register(api, huma.Operation{OperationID: "get-request", Method: http.MethodGet, Path: "/api/v1/requests/{id}", Summary: "Get a full record by id prefix", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*recordOutput, error) {
			rec, err := deps.Store.Get(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &recordOutput{Body: rec}, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []types.TabRef `json:"tabs"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "Distinct tab URLs seen in the log", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := deps.Store.Tabs()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})
}

// The pause marker is the only shared state; a running daemon notices it
// through its own watcher and publishes the change on the pause feed.
func registerPauseHandlers(api huma.API, deps Deps) {
	type pauseOutput struct {
		Body struct {
			Paused bool `json:"paused"`
		}
	}

	set := func(paused bool) (*pauseOutput, error) {
		var err error
		if paused {
			err = storage.Pause(deps.Store.Dir())
		} else {
			err = storage.Resume(deps.Store.Dir())
		}
		if err != nil {
			return nil, mapErr(err)
		}
		out := &pauseOutput{}
		out.Body.Paused = paused
		return out, nil
	}

	huma.Register(api, huma.Operation{OperationID: "pause-capture", Method: http.MethodPost, Path: "/api/v1/pause", Summary: "Stop writing records", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*pauseOutput, error) {
			return set(true)
		})

	huma.Register(api, huma.Operation{OperationID: "resume-capture", Method: http.MethodPost, Path: "/api/v1/resume", Summary: "Resume writing records", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*pauseOutput, error) {
			return set(false)
		})
}
