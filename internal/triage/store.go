package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/sift/internal/notification"
)

// SortOrder controls the timestamp ordering of list queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows a list query. Zero values mean "no filter";
// Limit <= 0 means no limit.
type ListFilter struct {
	Status     notification.Status
	Importance notification.Importance
	Search     string // case-insensitive substring match on body text
	Limit      int
	Offset     int
	Sort       SortOrder
}

// ThreadSummary is the precomputed per-thread cache row backing GroupAndRank.
// It is advisory: absence falls back to values derived on the fly.
type ThreadSummary struct {
	ThreadKey     string    `json:"thread_key"`
	Summary       string    `json:"summary"`
	Priority      int       `json:"priority"`
	TotalMessages int       `json:"total_messages"`
	TotalChars    int       `json:"total_chars"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Store is the persistence interface for notification records.
//
// Insert must perform the duplicate check and the insert as one atomic
// operation with respect to concurrent writers: a record whose
// (source, external_message_id) pair is already stored yields ok=false and
// no new row, never an error.
type Store interface {
	Insert(ctx context.Context, r *notification.Record) (id int64, ok bool, err error)
	Get(ctx context.Context, id int64) (*notification.Record, bool, error)
	List(ctx context.Context, f ListFilter) ([]notification.Record, error)
	UpdateStatus(ctx context.Context, id int64, status notification.Status) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)

	// Recent returns up to limit records, newest first, for analysis windows.
	Recent(ctx context.Context, limit int) ([]notification.Record, error)

	GetSummary(ctx context.Context, threadKey string) (*ThreadSummary, bool, error)
	PutSummary(ctx context.Context, s *ThreadSummary) error
}
