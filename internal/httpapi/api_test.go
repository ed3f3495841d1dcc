package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

// stubService implements TriageService with per-method hooks so each test
// controls exactly the calls it cares about.
type stubService struct {
	ingest       func(ctx context.Context, r *notification.Record) (*triage.IngestResult, error)
	get          func(ctx context.Context, id int64) (*notification.Record, bool, error)
	list         func(ctx context.Context, f triage.ListFilter) ([]notification.Record, error)
	setStatus    func(ctx context.Context, id int64, status notification.Status) (bool, error)
	delete       func(ctx context.Context, id int64) (bool, error)
	analyze      func(ctx context.Context, window int) (*triage.Analysis, error)
	groupAndRank func(ctx context.Context) ([]triage.ThreadView, error)
}

func (s *stubService) Ingest(ctx context.Context, r *notification.Record) (*triage.IngestResult, error) {
	if s.ingest != nil {
		return s.ingest(ctx, r)
	}
	return &triage.IngestResult{ID: 1}, nil
}

func (s *stubService) Get(ctx context.Context, id int64) (*notification.Record, bool, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return nil, false, nil
}

func (s *stubService) List(ctx context.Context, f triage.ListFilter) ([]notification.Record, error) {
	if s.list != nil {
		return s.list(ctx, f)
	}
	return []notification.Record{}, nil
}

func (s *stubService) SetStatus(ctx context.Context, id int64, status notification.Status) (bool, error) {
	if s.setStatus != nil {
		return s.setStatus(ctx, id, status)
	}
	return true, nil
}

func (s *stubService) Delete(ctx context.Context, id int64) (bool, error) {
	if s.delete != nil {
		return s.delete(ctx, id)
	}
	return true, nil
}

func (s *stubService) Analyze(ctx context.Context, window int) (*triage.Analysis, error) {
	if s.analyze != nil {
		return s.analyze(ctx, window)
	}
	return &triage.Analysis{Topics: []triage.Topic{}, Urgent: []notification.Record{}}, nil
}

func (s *stubService) GroupAndRank(ctx context.Context) ([]triage.ThreadView, error) {
	if s.groupAndRank != nil {
		return s.groupAndRank(ctx)
	}
	return []triage.ThreadView{}, nil
}

func newTestRouter(t *testing.T, svc *stubService) chi.Router {
	t.Helper()
	api := New(nil, svc, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r, nil)
	return r
}

// New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &stubService{}, nil)
	if api == nil {
		t.Fatal("New(nil, svc, nil) returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New(nil, svc, nil) left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &stubService{}, nil)
	if api == nil || api.logger == nil {
		t.Fatal("New(logger, svc, nil) dropped the logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"POST notification", http.MethodPost, "/api/v1/notifications", `{"source":"telegram"}`, http.StatusCreated},
		{"GET list", http.MethodGet, "/api/v1/notifications", "", http.StatusOK},
		{"GET one", http.MethodGet, "/api/v1/notifications/1", "", http.StatusNotFound},
		{"PUT not allowed", http.MethodPut, "/api/v1/notifications", "", http.StatusMethodNotAllowed},
		{"GET analysis", http.MethodGet, "/api/v1/analysis", "", http.StatusOK},
		{"GET threads", http.MethodGet, "/api/v1/threads", "", http.StatusOK},
		{"PATCH status", http.MethodPatch, "/api/v1/notifications/1/status", `{"status":"read"}`, http.StatusOK},
		{"DELETE one", http.MethodDelete, "/api/v1/notifications/1", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NoWebSocketWhenNil(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/ws = %d, want 404 when hub handler is nil", rec.Code)
	}
}

func TestRegisterRoutes_WebSocketWhenSet(t *testing.T) {
	t.Parallel()

	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	api := New(nil, &stubService{}, ws)
	r := chi.NewRouter()
	api.RegisterRoutes(r, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("GET /api/v1/ws = %d, want the handler to be wired", rec.Code)
	}
}

func TestRegisterRoutes_AuthProtectsMutations(t *testing.T) {
	t.Parallel()

	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	api := New(nil, &stubService{}, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r, deny)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodPost, "/api/v1/notifications", http.StatusUnauthorized},
		{http.MethodPatch, "/api/v1/notifications/1/status", http.StatusUnauthorized},
		{http.MethodDelete, "/api/v1/notifications/1", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/notifications", http.StatusOK},
		{http.MethodGet, "/api/v1/threads", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Ingestion

func TestHandleIngest_Created(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		ingest: func(_ context.Context, r *notification.Record) (*triage.IngestResult, error) {
			if r.Source != notification.SourceTelegram {
				t.Errorf("service saw source %q, want telegram", r.Source)
			}
			return &triage.IngestResult{ID: 42}, nil
		},
	}
	r := newTestRouter(t, svc)

	body := `{"source":"telegram","external_message_id":"1:1","body_text":"hi","timestamp":"2026-02-10T12:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] != float64(42) {
		t.Errorf("id = %v, want 42", resp["id"])
	}
}

func TestHandleIngest_Duplicate(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		ingest: func(context.Context, *notification.Record) (*triage.IngestResult, error) {
			return &triage.IngestResult{Duplicate: true}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{"source":"telegram"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] != nil {
		t.Errorf("duplicate id = %v, want null", resp["id"])
	}
	if resp["duplicate"] != true {
		t.Errorf("duplicate flag = %v, want true", resp["duplicate"])
	}
}

func TestHandleIngest_Malformed(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		ingest: func(context.Context, *notification.Record) (*triage.IngestResult, error) {
			return nil, triage.ErrMalformed
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{"source":"carrier-pigeon"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleIngest_InvalidJSON(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader("{bad"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleIngest_ServiceError(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		ingest: func(context.Context, *notification.Record) (*triage.IngestResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{"source":"telegram"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// Listing

func TestHandleList_PassesFilter(t *testing.T) {
	t.Parallel()

	var got triage.ListFilter
	svc := &stubService{
		list: func(_ context.Context, f triage.ListFilter) ([]notification.Record, error) {
			got = f
			return []notification.Record{}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/notifications?status=read&importance=high&search=deploy&limit=5&offset=10&sort=desc", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.Status != notification.StatusRead || got.Importance != notification.ImportanceHigh {
		t.Errorf("filter status/importance = %q/%q", got.Status, got.Importance)
	}
	if got.Search != "deploy" || got.Limit != 5 || got.Offset != 10 || got.Sort != triage.SortDesc {
		t.Errorf("filter = %+v, want search/limit/offset/sort from the query", got)
	}
}

func TestHandleList_InvalidParams(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	tests := []struct {
		name  string
		query string
	}{
		{"bad status", "?status=destroyed"},
		{"bad importance", "?importance=apocalyptic"},
		{"non-numeric limit", "?limit=ten"},
		{"negative limit", "?limit=-1"},
		{"non-numeric offset", "?offset=x"},
		{"negative offset", "?offset=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications"+tt.query, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("GET %s = %d, want %d", tt.query, rec.Code, http.StatusBadRequest)
			}
		})
	}
}

// Single record

func TestHandleGet_Found(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		get: func(_ context.Context, id int64) (*notification.Record, bool, error) {
			return &notification.Record{ID: id, BodyText: "hello"}, true, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/7", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got notification.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != 7 || got.BodyText != "hello" {
		t.Errorf("record = %+v, want id 7 body hello", got)
	}
}

func TestHandleGet_BadIDs(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	for _, id := range []string{"abc", "0", "-3", "1.5"} {
		t.Run(id, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/"+id, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("GET id=%s = %d, want %d", id, rec.Code, http.StatusBadRequest)
			}
		})
	}
}

// Status updates

func TestHandleSetStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		updated    bool
		err        error
		wantStatus int
	}{
		{"updated", `{"status":"read"}`, true, nil, http.StatusOK},
		{"missing record", `{"status":"read"}`, false, nil, http.StatusNotFound},
		{"invalid status value", `{"status":"vanished"}`, false, triage.ErrMalformed, http.StatusBadRequest},
		{"invalid json", `{`, false, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &stubService{
				setStatus: func(context.Context, int64, notification.Status) (bool, error) {
					return tt.updated, tt.err
				},
			}
			r := newTestRouter(t, svc)

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/3/status", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// Deletion

func TestHandleDelete_Missing(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		delete: func(context.Context, int64) (bool, error) { return false, nil },
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/9", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// Analysis and threads

func TestHandleAnalysis_Window(t *testing.T) {
	t.Parallel()

	var gotWindow int
	svc := &stubService{
		analyze: func(_ context.Context, window int) (*triage.Analysis, error) {
			gotWindow = window
			return &triage.Analysis{Topics: []triage.Topic{}, Urgent: []notification.Record{}}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis?window=250", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotWindow != 250 {
		t.Errorf("window = %d, want 250", gotWindow)
	}
}

func TestHandleAnalysis_InvalidWindow(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{})

	for _, q := range []string{"?window=x", "?window=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis"+q, http.NoBody)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleThreads(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		groupAndRank: func(context.Context) ([]triage.ThreadView, error) {
			return []triage.ThreadView{
				{GroupKey: "group::10", Priority: 4, Summary: "release chatter"},
			}, nil
		},
	}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var views []triage.ThreadView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(views) != 1 || views[0].GroupKey != "group::10" {
		t.Errorf("views = %+v, want the stubbed thread", views)
	}
}

// Tracing

func TestHandleIngest_AnnotatesSpan(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	r := newTestRouter(t, &stubService{})

	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications",
		strings.NewReader(`{"source":"telegram","external_message_id":"1:1"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	span.End()

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	var found bool
	for _, attr := range spans[0].Attributes {
		if attr.Key == "sift.source" && attr.Value.AsString() == "telegram" {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v missing sift.source=telegram", spans[0].Attributes)
	}
}

// Fuzz

func FuzzIngestNotification(f *testing.F) {
	api := New(nil, &stubService{}, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r, nil)

	seeds := [][]byte{
		nil,
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"source":"telegram","external_message_id":"1:1","body_text":"hi"}`),
		[]byte("{invalid json"),
		[]byte("\x00\x01\x02\xff\xfe"),
		[]byte(strings.Repeat("a", 10000)),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body []byte) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic.
		r.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusCreated, http.StatusOK, http.StatusBadRequest:
		default:
			t.Errorf("POST /api/v1/notifications with body len=%d = %d, want 201, 200 or 400",
				len(body), rec.Code)
		}
	})
}
