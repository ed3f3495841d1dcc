// Package notification defines the canonical record moving through sift:
// a normalized message from any ingestion source, plus its importance and
// triage status enumerations.
package notification

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Source identifies where a record was ingested from.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceEmail    Source = "email"
	SourceManual   Source = "manual"
)

// Valid reports whether s is a known ingestion source.
func (s Source) Valid() bool {
	switch s {
	case SourceTelegram, SourceEmail, SourceManual:
		return true
	}
	return false
}

// Importance is the four-level triage priority of a record.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Ordinal maps an importance level to a comparable numeric scale.
// Unknown or unset levels sort lowest.
func (i Importance) Ordinal() int {
	switch i {
	case ImportanceCritical:
		return 5
	case ImportanceHigh:
		return 4
	case ImportanceMedium:
		return 3
	default:
		return 1
	}
}

// Valid reports whether i is a known importance level.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	}
	return false
}

// Status tracks where a record is in the triage lifecycle.
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
	StatusDelayed  Status = "delayed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusArchived, StatusDelayed:
		return true
	}
	return false
}

// MaxRawPayload caps the stored diagnostic payload, matching the source
// adapters which truncate before ingestion.
const MaxRawPayload = 1000

// ClampRawPayload caps s at MaxRawPayload bytes. The cut backs up to a rune
// boundary so a multi-byte rune is dropped whole rather than split; the
// Postgres backend rejects invalid UTF-8 outright.
func ClampRawPayload(s string) string {
	if len(s) <= MaxRawPayload {
		return s
	}
	s = s[:MaxRawPayload]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// Record is the unit of work: one normalized message from a source adapter.
// ID is assigned by the store on insert. (Source, ExternalID) is the dedup
// key and must be unique across the corpus. Importance and Status are the
// only fields mutable after insert.
type Record struct {
	ID          int64      `json:"id"`
	Source      Source     `json:"source"`
	SenderID    int64      `json:"sender_id,omitempty"`
	SenderEmail string     `json:"sender_email,omitempty"`
	SenderName  string     `json:"sender_name"`
	ThreadID    int64      `json:"thread_id,omitempty"`
	ThreadTitle string     `json:"thread_title,omitempty"`
	BodyText    string     `json:"body_text"`
	MediaKind   string     `json:"media_kind,omitempty"`
	Timestamp   string     `json:"timestamp"` // ISO-8601, lexically comparable
	ExternalID  string     `json:"external_message_id"`
	RawPayload  string     `json:"raw_payload,omitempty"`
	Importance  Importance `json:"importance"`
	Status      Status     `json:"status"`
}

// Validate checks the fields required before a record may be persisted.
func (r *Record) Validate() error {
	var errs []error
	if !r.Source.Valid() {
		errs = append(errs, fmt.Errorf("invalid source %q", r.Source))
	}
	if r.ExternalID == "" {
		errs = append(errs, errors.New("external_message_id is required"))
	}
	if r.Timestamp == "" {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if r.Importance != "" && !r.Importance.Valid() {
		errs = append(errs, fmt.Errorf("invalid importance %q", r.Importance))
	}
	if r.Status != "" && !r.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	return errors.Join(errs...)
}

// Time parses the record timestamp. Records with unparsable timestamps get
// the zero time so sorting passes never fail on bad input.
func (r *Record) Time() time.Time {
	return ParseTimestamp(r.Timestamp)
}

// timestampLayouts are tried in order when parsing record timestamps.
// Adapters emit RFC 3339, but manual entries may omit the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-ish timestamp string, returning the
// zero time when no layout matches.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
