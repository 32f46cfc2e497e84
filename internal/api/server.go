// Package api serves the capture dashboard: a JSON view over the request
// log, pause control, and a live event stream.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spm1001/skill-chrome-log/internal/logstore"
	"github.com/spm1001/skill-chrome-log/internal/relay"
	"github.com/spm1001/skill-chrome-log/internal/types"
)

// Live reports the state of a daemon running in the same process.
type Live interface {
	Connected() bool
	Tabs() []types.TabInfo
	InFlight() int
}

// Deps wires the server. Live and Broker are optional: a standalone
// dashboard only has the log on disk.
type Deps struct {
	Store   *logstore.Store
	PIDFile string
	Live    Live
	Broker  *relay.Broker
}

func NewServer(deps Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chrome-log API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(streamDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if deps.Broker != nil {
		router.Get("/api/v1/stream", relay.SSEHandler(deps.Broker))
	}

	registerStatusHandlers(api, deps)
	registerRequestHandlers(api, deps)
	registerPauseHandlers(api, deps)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, logstore.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, logstore.ErrBadStatus):
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
