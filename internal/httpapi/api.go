// Package httpapi exposes the notification triage service over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

// TriageService defines the business operations httpapi needs.
type TriageService interface {
	Ingest(ctx context.Context, r *notification.Record) (*triage.IngestResult, error)
	Get(ctx context.Context, id int64) (*notification.Record, bool, error)
	List(ctx context.Context, f triage.ListFilter) ([]notification.Record, error)
	SetStatus(ctx context.Context, id int64, status notification.Status) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Analyze(ctx context.Context, window int) (*triage.Analysis, error)
	GroupAndRank(ctx context.Context) ([]triage.ThreadView, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	ws     http.HandlerFunc
}

// New creates a new API handler. ws serves the live-update WebSocket and
// may be nil when the hub is disabled.
func New(logger log.Logger, svc TriageService, ws http.HandlerFunc) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		ws:     ws,
	}
}

// RegisterRoutes attaches API endpoints to the router. auth wraps the
// mutating routes; pass nil to leave them open.
func (a *API) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/notifications", a.handleListNotifications)
		r.Get("/notifications/{id}", a.handleGetNotification)
		r.Get("/analysis", a.handleAnalysis)
		r.Get("/threads", a.handleThreads)
		if a.ws != nil {
			r.Get("/ws", a.ws)
		}

		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth)
			}
			r.Post("/notifications", a.handleIngestNotification)
			r.Patch("/notifications/{id}/status", a.handleSetStatus)
			r.Delete("/notifications/{id}", a.handleDeleteNotification)
		})
	})
}
