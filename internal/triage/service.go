package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/notification"
)

// ErrMalformed marks records rejected at the ingestion boundary before any
// persistence happens.
var ErrMalformed = errors.New("malformed record")

// Notifier receives a refresh signal after every store mutation. Delivery
// is best-effort; implementations must never block ingestion.
type Notifier interface {
	Broadcast(ctx context.Context, action string)
}

// IngestResult is the outcome of ingesting one record. A duplicate yields
// Duplicate=true and no ID, matching the store's silent dedup contract.
type IngestResult struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// Service is the business boundary for notification triage operations.
type Service struct {
	store    Store
	scorer   *Scorer
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics
}

// NewService creates a new triage service. notifier and metrics may be nil.
func NewService(store Store, scorer *Scorer, notifier Notifier, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	return &Service{
		store:    store,
		scorer:   scorer,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Ingest validates, scores, and persists one normalized record. Duplicates
// by (source, external_message_id) are reported, not stored and not an
// error. Malformed records are rejected before persistence.
func (s *Service) Ingest(ctx context.Context, r *notification.Record) (*IngestResult, error) {
	if err := r.Validate(); err != nil {
		s.countIngest(r.Source, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if r.Status == "" {
		r.Status = notification.StatusUnread
	}
	if r.Importance == "" {
		r.Importance = s.scorer.Score(r)
	}
	r.RawPayload = notification.ClampRawPayload(r.RawPayload)

	id, ok, err := s.store.Insert(ctx, r)
	if err != nil {
		s.countIngest(r.Source, "error")
		s.logger.Error(ctx, err, "insert failed",
			"source", r.Source,
			"external_id", r.ExternalID,
		)
		return nil, err
	}
	if !ok {
		s.countIngest(r.Source, "duplicate")
		return &IngestResult{Duplicate: true}, nil
	}

	r.ID = id
	s.countIngest(r.Source, "stored")
	s.logger.Info(ctx, "record ingested",
		"id", id,
		"source", r.Source,
		"importance", r.Importance,
	)
	s.broadcast(ctx)
	return &IngestResult{ID: id}, nil
}

// Get retrieves a single record by ID.
func (s *Service) Get(ctx context.Context, id int64) (*notification.Record, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns records matching the filter. The result is never nil.
func (s *Service) List(ctx context.Context, f ListFilter) ([]notification.Record, error) {
	records, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []notification.Record{}
	}
	return records, nil
}

// SetStatus moves a record through the triage lifecycle. Returns false
// when the record does not exist; broadcasts only on an actual update.
func (s *Service) SetStatus(ctx context.Context, id int64, status notification.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: invalid status %q", ErrMalformed, status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		s.logger.Error(ctx, err, "status update failed", "id", id, "status", status)
		return false, err
	}
	if ok {
		if s.metrics != nil {
			s.metrics.StatusUpdatesTotal.WithLabelValues(string(status)).Inc()
		}
		s.broadcast(ctx)
	}
	return ok, nil
}

// Delete removes a record. Returns false for an unknown ID; no broadcast
// fires in that case.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		s.logger.Error(ctx, err, "delete failed", "id", id)
		return false, err
	}
	if ok {
		if s.metrics != nil {
			s.metrics.DeletesTotal.Inc()
		}
		s.broadcast(ctx)
	}
	return ok, nil
}

// Analyze computes a read-only topic/urgency snapshot over the most recent
// window records. An empty corpus yields a well-formed empty analysis.
func (s *Service) Analyze(ctx context.Context, window int) (*Analysis, error) {
	if window <= 0 {
		window = DefaultAnalysisWindow
	}
	start := time.Now()

	records, err := s.store.Recent(ctx, window)
	if err != nil {
		return nil, err
	}
	a := Analyze(records)

	if s.metrics != nil {
		s.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}
	return a, nil
}

// GroupAndRank builds the grouped, ranked thread payload for presentation.
// Summaries and priorities come from the precomputed cache when available
// and are derived on the fly otherwise.
func (s *Service) GroupAndRank(ctx context.Context) ([]ThreadView, error) {
	start := time.Now()

	records, err := s.store.List(ctx, ListFilter{Sort: SortAsc})
	if err != nil {
		return nil, err
	}

	views := make([]ThreadView, 0, 16)
	for _, t := range GroupThreads(records) {
		view := ThreadView{
			GroupKey:      t.Key,
			ChatTitle:     t.Title,
			IsGroup:       t.IsGroup,
			Messages:      t.Records,
			Collapsed:     t.Collapsed(),
			TotalMessages: len(t.Records),
			TotalChars:    t.TotalChars,
		}

		if cached, ok, err := s.store.GetSummary(ctx, t.Key); err != nil {
			// cache trouble degrades to derived values, never fails the read
			s.logger.Warn(ctx, "summary cache read failed", "thread_key", t.Key, "error", err)
		} else if ok {
			view.Summary = cached.Summary
			view.Priority = cached.Priority
		}
		if view.Summary == "" {
			view.Summary = Summarize(threadText(t))
		}
		if view.Priority == 0 {
			view.Priority = t.MaxImportance()
		}

		views = append(views, view)
	}

	Rank(views)

	if s.metrics != nil {
		s.metrics.GroupRankDuration.Observe(time.Since(start).Seconds())
	}
	return views, nil
}

// RefreshSummaries recomputes the per-thread summary cache over the whole
// corpus. Intended to run from a background schedule; a failing thread is
// logged and skipped so the rest still refresh.
func (s *Service) RefreshSummaries(ctx context.Context) error {
	records, err := s.store.List(ctx, ListFilter{Sort: SortAsc})
	if err != nil {
		return err
	}

	threads := GroupThreads(records)
	refreshed := 0
	for _, t := range threads {
		summary := &ThreadSummary{
			ThreadKey:     t.Key,
			Summary:       Summarize(threadText(t)),
			Priority:      t.MaxImportance(),
			TotalMessages: len(t.Records),
			TotalChars:    t.TotalChars,
			LastUpdated:   time.Now().UTC(),
		}
		if err := s.store.PutSummary(ctx, summary); err != nil {
			s.logger.Error(ctx, err, "summary refresh failed", "thread_key", t.Key)
			continue
		}
		refreshed++
	}

	if s.metrics != nil {
		s.metrics.SummaryRefreshesTotal.Add(float64(refreshed))
	}
	s.logger.Info(ctx, "thread summaries refreshed", "threads", len(threads), "refreshed", refreshed)
	return nil
}

// threadText joins member bodies for summarization.
func threadText(t *Thread) string {
	parts := make([]string, 0, len(t.Records))
	for i := range t.Records {
		if t.Records[i].BodyText != "" {
			parts = append(parts, t.Records[i].BodyText)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Service) countIngest(source notification.Source, result string) {
	if s.metrics != nil {
		s.metrics.IngestsTotal.WithLabelValues(string(source), result).Inc()
	}
}

func (s *Service) broadcast(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.BroadcastsTotal.Inc()
	}
	s.notifier.Broadcast(ctx, "refresh")
}
