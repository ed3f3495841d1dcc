package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

func (a *API) handleIngestNotification(w http.ResponseWriter, r *http.Request) {
	var rec notification.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sift.source", string(rec.Source)))

	result, err := a.svc.Ingest(r.Context(), &rec)
	if err != nil {
		if errors.Is(err, triage.ErrMalformed) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		a.logger.Error(r.Context(), err, "ingest failed", "source", rec.Source)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if result.Duplicate {
		// Duplicates are an expected outcome, not a client error.
		writeJSON(w, http.StatusOK, map[string]any{"id": nil, "duplicate": true})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": result.ID})
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := triage.ListFilter{
		Status:     notification.Status(q.Get("status")),
		Importance: notification.Importance(q.Get("importance")),
		Search:     q.Get("search"),
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, `{"error":"invalid status filter"}`, http.StatusBadRequest)
		return
	}
	if f.Importance != "" && !f.Importance.Valid() {
		http.Error(w, `{"error":"invalid importance filter"}`, http.StatusBadRequest)
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid offset"}`, http.StatusBadRequest)
			return
		}
		f.Offset = n
	}
	if q.Get("sort") == "desc" {
		f.Sort = triage.SortDesc
	}

	records, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.logger.Error(r.Context(), err, "list notifications failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("sift.notification.id", id))

	rec, found, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "get notification failed", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status notification.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	updated, err := a.svc.SetStatus(r.Context(), id, body.Status)
	if err != nil {
		if errors.Is(err, triage.ErrMalformed) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		a.logger.Error(r.Context(), err, "status update failed", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": body.Status})
}

func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	deleted, err := a.svc.Delete(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "delete failed", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	window := 0
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid window"}`, http.StatusBadRequest)
			return
		}
		window = n
	}

	analysis, err := a.svc.Analyze(r.Context(), window)
	if err != nil {
		a.logger.Error(r.Context(), err, "analysis failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (a *API) handleThreads(w http.ResponseWriter, r *http.Request) {
	views, err := a.svc.GroupAndRank(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "thread grouping failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
