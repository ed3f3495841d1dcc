package triage

import (
	"strconv"
	"strings"

	"github.com/linnemanlabs/sift/internal/notification"
)

// urgencyKeywords promote a record to high importance when found in the
// body or thread title.
var urgencyKeywords = []string{"urgent", "срочно", "важно", "пожалуйста", "help", "помогите"}

// scheduleKeywords mark calendar-ish messages as medium importance.
var scheduleKeywords = []string{"meeting", "встреча"}

// Scorer assigns an importance level to a record. Scoring is a pure
// function of the record and the configured VIP list: no I/O, no state,
// identical input always yields identical output. The rule set is
// deliberately cheap and explainable; callers depend only on the
// Importance enumeration, so it can be swapped for a learned classifier
// without touching the contract.
type Scorer struct {
	vips map[string]struct{}
}

// NewScorer builds a scorer from the VIP sender list. Entries may be a
// numeric sender ID, an email address, or a sender name; matching is
// case-insensitive.
func NewScorer(vips []string) *Scorer {
	set := make(map[string]struct{}, len(vips))
	for _, v := range vips {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return &Scorer{vips: set}
}

// Score evaluates rules in order, first match wins:
// VIP sender -> critical, urgency keyword -> high,
// scheduling keyword -> medium, default -> medium.
func (s *Scorer) Score(r *notification.Record) notification.Importance {
	if s.isVIP(r) {
		return notification.ImportanceCritical
	}

	body := strings.ToLower(r.BodyText)
	title := strings.ToLower(r.ThreadTitle)

	for _, kw := range urgencyKeywords {
		if strings.Contains(body, kw) || strings.Contains(title, kw) {
			return notification.ImportanceHigh
		}
	}

	for _, kw := range scheduleKeywords {
		if strings.Contains(body, kw) {
			return notification.ImportanceMedium
		}
	}

	return notification.ImportanceMedium
}

func (s *Scorer) isVIP(r *notification.Record) bool {
	if len(s.vips) == 0 {
		return false
	}
	candidates := []string{
		strings.ToLower(r.SenderEmail),
		strings.ToLower(r.SenderName),
	}
	if r.SenderID != 0 {
		candidates = append(candidates, strconv.FormatInt(r.SenderID, 10))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := s.vips[c]; ok {
			return true
		}
	}
	return false
}
