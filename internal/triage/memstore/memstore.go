// Package memstore provides an in-memory implementation of triage.Store.
// Suitable for dev and testing; the dedup-then-insert pair is atomic under
// a single mutex.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

// Store holds notification records in memory.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	records   map[int64]*notification.Record
	seen      map[string]int64 // dedup key -> record ID
	summaries map[string]*triage.ThreadSummary
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		nextID:    1,
		records:   make(map[int64]*notification.Record),
		seen:      make(map[string]int64),
		summaries: make(map[string]*triage.ThreadSummary),
	}
}

func dedupKey(source notification.Source, externalID string) string {
	return string(source) + "\x00" + externalID
}

// Insert stores a copy of the record unless its dedup key is taken.
func (s *Store) Insert(_ context.Context, r *notification.Record) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(r.Source, r.ExternalID)
	if _, dup := s.seen[key]; dup {
		return 0, false, nil
	}

	id := s.nextID
	s.nextID++

	cp := *r
	cp.ID = id
	s.records[id] = &cp
	s.seen[key] = id
	return id, true, nil
}

// Get retrieves a record by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id int64) (*notification.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// List returns copies of records matching the filter, sorted by timestamp.
func (s *Store) List(_ context.Context, f triage.ListFilter) ([]notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	matched := make([]notification.Record, 0, len(s.records))
	for _, r := range s.records {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Importance != "" && r.Importance != f.Importance {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.BodyText), search) {
			continue
		}
		matched = append(matched, *r)
	}

	desc := f.Sort == triage.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].Timestamp < matched[j].Timestamp
	})

	return page(matched, f.Limit, f.Offset), nil
}

// UpdateStatus mutates the status of a stored record.
func (s *Store) UpdateStatus(_ context.Context, id int64, status notification.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	r.Status = status
	return true, nil
}

// Delete removes a record and frees its dedup key.
func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.seen, dedupKey(r.Source, r.ExternalID))
	delete(s.records, id)
	return true, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]notification.Record, error) {
	return s.List(ctx, triage.ListFilter{Sort: triage.SortDesc, Limit: limit})
}

// GetSummary retrieves the cached summary for a thread key. Returns a copy.
func (s *Store) GetSummary(_ context.Context, threadKey string) (*triage.ThreadSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[threadKey]
	if !ok {
		return nil, false, nil
	}
	cp := *sum
	return &cp, true, nil
}

// PutSummary stores a copy of the thread summary.
func (s *Store) PutSummary(_ context.Context, sum *triage.ThreadSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sum
	s.summaries[sum.ThreadKey] = &cp
	return nil
}

func page(records []notification.Record, limit, offset int) []notification.Record {
	if offset > 0 {
		if offset >= len(records) {
			return []notification.Record{}
		}
		records = records[offset:]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
