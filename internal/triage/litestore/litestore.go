// Package litestore provides a SQLite implementation of triage.Store for
// single-node deployments without a PostgreSQL server.
package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    source              TEXT NOT NULL,
    sender_id           INTEGER NOT NULL DEFAULT 0,
    sender_email        TEXT NOT NULL DEFAULT '',
    sender_name         TEXT NOT NULL DEFAULT '',
    thread_id           INTEGER NOT NULL DEFAULT 0,
    thread_title        TEXT NOT NULL DEFAULT '',
    body_text           TEXT NOT NULL DEFAULT '',
    media_kind          TEXT NOT NULL DEFAULT '',
    ts                  TEXT NOT NULL,
    external_message_id TEXT NOT NULL,
    raw_payload         TEXT NOT NULL DEFAULT '',
    importance          TEXT NOT NULL DEFAULT 'medium',
    status              TEXT NOT NULL DEFAULT 'unread',
    UNIQUE (source, external_message_id)
);

CREATE INDEX IF NOT EXISTS notifications_ts_idx ON notifications (ts);
CREATE INDEX IF NOT EXISTS notifications_status_idx ON notifications (status);

CREATE TABLE IF NOT EXISTS thread_summaries (
    thread_key     TEXT PRIMARY KEY,
    summary        TEXT NOT NULL DEFAULT '',
    priority       INTEGER NOT NULL DEFAULT 0,
    total_messages INTEGER NOT NULL DEFAULT 0,
    total_chars    INTEGER NOT NULL DEFAULT 0,
    last_updated   TIMESTAMP NOT NULL
);
`

// Store persists notification records in a local SQLite file. The unique
// index on (source, external_message_id) plus INSERT OR IGNORE keeps
// dedup-and-insert atomic.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the SQLite database at dbPath, enables WAL mode,
// and applies the schema. The connection pool is capped at one writer;
// modernc sqlite serializes writes anyway and a single connection avoids
// SQLITE_BUSY churn.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const recordColumns = `id, source, sender_id, sender_email, sender_name, thread_id,
	thread_title, body_text, media_kind, ts, external_message_id, raw_payload,
	importance, status`

// Insert stores a record, returning ok=false when the dedup key is taken.
func (s *Store) Insert(ctx context.Context, r *notification.Record) (int64, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (
			source, sender_id, sender_email, sender_name, thread_id, thread_title,
			body_text, media_kind, ts, external_message_id, raw_payload, importance, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.Source), r.SenderID, r.SenderEmail, r.SenderName, r.ThreadID,
		r.ThreadTitle, r.BodyText, r.MediaKind, r.Timestamp, r.ExternalID,
		r.RawPayload, string(r.Importance), string(r.Status),
	)
	if err != nil {
		return 0, false, fmt.Errorf("inserting notification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("inserting notification: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("inserting notification: %w", err)
	}
	return id, true, nil
}

// Get retrieves a single record by ID.
func (s *Store) Get(ctx context.Context, id int64) (*notification.Record, bool, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT `+recordColumns+` FROM notifications WHERE id = ?`, id)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting notification %d: %w", id, err)
	}
	return r, true, nil
}

// List returns records matching the filter, sorted by timestamp.
func (s *Store) List(ctx context.Context, f triage.ListFilter) ([]notification.Record, error) {
	var conditions []string
	var args []any

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Importance != "" {
		conditions = append(conditions, "importance = ?")
		args = append(args, string(f.Importance))
	}
	if f.Search != "" {
		conditions = append(conditions, "lower(body_text) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}

	query := `SELECT ` + recordColumns + ` FROM notifications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if f.Sort == triage.SortDesc {
		query += " ORDER BY ts DESC, id DESC"
	} else {
		query += " ORDER BY ts ASC, id ASC"
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var records []notification.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// UpdateStatus mutates the status of a record, reporting whether a row
// was touched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status notification.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("updating status of %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating status of %d: %w", id, err)
	}
	return affected > 0, nil
}

// Delete removes a record, reporting whether a row was touched.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting notification %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return affected > 0, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]notification.Record, error) {
	return s.List(ctx, triage.ListFilter{Sort: triage.SortDesc, Limit: limit})
}

// GetSummary retrieves the cached summary for a thread key.
func (s *Store) GetSummary(ctx context.Context, threadKey string) (*triage.ThreadSummary, bool, error) {
	var (
		sum         triage.ThreadSummary
		lastUpdated time.Time
	)
	err := s.db.QueryRowxContext(ctx,
		`SELECT thread_key, summary, priority, total_messages, total_chars, last_updated
		 FROM thread_summaries WHERE thread_key = ?`, threadKey,
	).Scan(&sum.ThreadKey, &sum.Summary, &sum.Priority, &sum.TotalMessages, &sum.TotalChars, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting summary for %q: %w", threadKey, err)
	}
	sum.LastUpdated = lastUpdated
	return &sum, true, nil
}

// PutSummary upserts the cached summary for a thread key.
func (s *Store) PutSummary(ctx context.Context, sum *triage.ThreadSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO thread_summaries (
			thread_key, summary, priority, total_messages, total_chars, last_updated
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sum.ThreadKey, sum.Summary, sum.Priority, sum.TotalMessages, sum.TotalChars,
		sum.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("putting summary for %q: %w", sum.ThreadKey, err)
	}
	return nil
}

// scanRecord scans a record row from either a sqlx.Row or sqlx.Rows.
func scanRecord(row interface{ Scan(...any) error }) (*notification.Record, error) {
	var (
		r          notification.Record
		source     string
		importance string
		status     string
	)

	err := row.Scan(
		&r.ID, &source, &r.SenderID, &r.SenderEmail, &r.SenderName, &r.ThreadID,
		&r.ThreadTitle, &r.BodyText, &r.MediaKind, &r.Timestamp, &r.ExternalID,
		&r.RawPayload, &importance, &status,
	)
	if err != nil {
		return nil, err
	}

	r.Source = notification.Source(source)
	r.Importance = notification.Importance(importance)
	r.Status = notification.Status(status)
	return &r, nil
}
