// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists notification records in PostgreSQL. The unique index on
// (source, external_message_id) plus ON CONFLICT DO NOTHING makes the
// dedup check and the insert one atomic statement, so concurrent adapters
// delivering the same external message cannot race a duplicate in.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, source, sender_id, sender_email, sender_name, thread_id,
	thread_title, body_text, media_kind, ts, external_message_id, raw_payload,
	importance, status`

// Insert stores a record, returning ok=false when the dedup key is taken.
func (s *Store) Insert(ctx context.Context, r *notification.Record) (int64, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Insert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	query := `INSERT INTO notifications (
		source, sender_id, sender_email, sender_name, thread_id, thread_title,
		body_text, media_kind, ts, external_message_id, raw_payload, importance, status
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (source, external_message_id) DO NOTHING
	RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		string(r.Source), r.SenderID, r.SenderEmail, r.SenderName, r.ThreadID,
		r.ThreadTitle, r.BodyText, r.MediaKind, r.Timestamp, r.ExternalID,
		r.RawPayload, string(r.Importance), string(r.Status),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// conflict: duplicate dedup key, nothing inserted
			return 0, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, false, fmt.Errorf("insert notification: %w", err)
	}
	return id, true, nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id int64) (*notification.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = $1`
	r, err := scanRecordRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// List returns records matching the filter, sorted by timestamp.
func (s *Store) List(ctx context.Context, f triage.ListFilter) ([]notification.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Status != "" {
		conditions = append(conditions, "status = "+arg(string(f.Status)))
	}
	if f.Importance != "" {
		conditions = append(conditions, "importance = "+arg(string(f.Importance)))
	}
	if f.Search != "" {
		conditions = append(conditions, "body_text ILIKE "+arg("%"+f.Search+"%"))
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
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return records, nil
}

// UpdateStatus mutates the status of a record, reporting whether a row
// was touched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status notification.Status) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.UpdateStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a record, reporting whether a row was touched.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Delete", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("delete notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]notification.Record, error) {
	return s.List(ctx, triage.ListFilter{Sort: triage.SortDesc, Limit: limit})
}

// GetSummary retrieves the cached summary for a thread key.
func (s *Store) GetSummary(ctx context.Context, threadKey string) (*triage.ThreadSummary, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetSummary", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var sum triage.ThreadSummary
	err := s.pool.QueryRow(ctx,
		`SELECT thread_key, summary, priority, total_messages, total_chars, last_updated
		 FROM thread_summaries WHERE thread_key = $1`, threadKey,
	).Scan(&sum.ThreadKey, &sum.Summary, &sum.Priority, &sum.TotalMessages, &sum.TotalChars, &sum.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get summary: %w", err)
	}
	return &sum, true, nil
}

// PutSummary upserts the cached summary for a thread key.
func (s *Store) PutSummary(ctx context.Context, sum *triage.ThreadSummary) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutSummary", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO thread_summaries (thread_key, summary, priority, total_messages, total_chars, last_updated)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (thread_key) DO UPDATE SET
			summary        = EXCLUDED.summary,
			priority       = EXCLUDED.priority,
			total_messages = EXCLUDED.total_messages,
			total_chars    = EXCLUDED.total_chars,
			last_updated   = EXCLUDED.last_updated`,
		sum.ThreadKey, sum.Summary, sum.Priority, sum.TotalMessages, sum.TotalChars, sum.LastUpdated,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]notification.Record, error) {
	var records []notification.Record
	for rows.Next() {
		r, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}

// scanRecordRow scans a single row into a Record. Returns (nil, nil) when
// no row is found.
func scanRecordRow(row pgx.Row) (*notification.Record, error) {
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Source = notification.Source(source)
	r.Importance = notification.Importance(importance)
	r.Status = notification.Status(status)
	return &r, nil
}
