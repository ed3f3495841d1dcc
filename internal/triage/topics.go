package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/sift/internal/notification"
)

const (
	// DefaultAnalysisWindow bounds how many recent records Analyze
	// considers when the caller does not say otherwise.
	DefaultAnalysisWindow = 800

	topicCandidates = 10
	maxTopics       = 8
	maxRelatedTerms = 3
	maxUrgent       = 8

	// urgentOrdinal is the minimum importance ordinal for the urgent list.
	urgentOrdinal = 4
)

// Topic is a frequent term with the records mentioning it. Recomputed per
// analysis request, never persisted.
type Topic struct {
	Keyword       string                `json:"keyword"`
	Count         int                   `json:"count"`
	AvgImportance float64               `json:"avg_importance"`
	Related       []string              `json:"related,omitempty"`
	Synopsis      string                `json:"synopsis"`
	Records       []notification.Record `json:"records"`
}

// Analysis is the read-only snapshot returned by Analyze: surfaced topics
// plus records needing urgent attention. Both slices are present (possibly
// empty) even for an empty corpus.
type Analysis struct {
	Topics []Topic               `json:"topics"`
	Urgent []notification.Record `json:"urgent"`
}

// Analyze computes topics and urgent records over a window of the corpus.
//
// Topic membership is a substring test against the lowercased body, not a
// token match, so a topic like "cat" also collects "category". That
// over-match is intentional and load-bearing for short morphology-rich
// messages; see DESIGN.md before changing it.
func Analyze(records []notification.Record) *Analysis {
	a := &Analysis{
		Topics: []Topic{},
		Urgent: []notification.Record{},
	}
	if len(records) == 0 {
		return a
	}

	// Global term frequency across the window.
	freq := make(map[string]int)
	for i := range records {
		for _, tok := range tokenize(records[i].BodyText) {
			freq[tok]++
		}
	}

	for _, term := range topTerms(freq, topicCandidates) {
		topic := buildTopic(term, records)
		if topic.Count == 0 {
			continue
		}
		a.Topics = append(a.Topics, topic)
		if len(a.Topics) == maxTopics {
			break
		}
	}

	a.Urgent = urgentRecords(records)
	return a
}

// topTerms returns the n most frequent terms, most frequent first; ties
// break alphabetically so analysis output is deterministic.
func topTerms(freq map[string]int, n int) []string {
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func buildTopic(term string, records []notification.Record) Topic {
	var members []notification.Record
	importanceSum := 0
	local := make(map[string]int)

	for i := range records {
		body := strings.ToLower(records[i].BodyText)
		if !strings.Contains(body, term) {
			continue
		}
		members = append(members, records[i])
		importanceSum += records[i].Importance.Ordinal()
		for _, tok := range tokenize(records[i].BodyText) {
			if tok != term {
				local[tok]++
			}
		}
	}

	t := Topic{
		Keyword: term,
		Count:   len(members),
		Records: members,
		Related: topTerms(local, maxRelatedTerms),
	}
	if t.Count > 0 {
		t.AvgImportance = float64(importanceSum) / float64(t.Count)
	}
	t.Synopsis = synopsis(&t)
	return t
}

func synopsis(t *Topic) string {
	if len(t.Related) > 0 {
		return fmt.Sprintf("%q comes up in %d message(s), alongside %s",
			t.Keyword, t.Count, strings.Join(t.Related, ", "))
	}
	return fmt.Sprintf("%q comes up in %d message(s)", t.Keyword, t.Count)
}

// urgentRecords selects records at or above the urgent ordinal, most
// important first, capped to the surfacing limit.
func urgentRecords(records []notification.Record) []notification.Record {
	urgent := []notification.Record{}
	for i := range records {
		if records[i].Importance.Ordinal() >= urgentOrdinal {
			urgent = append(urgent, records[i])
		}
	}
	sort.SliceStable(urgent, func(i, j int) bool {
		return urgent[i].Importance.Ordinal() > urgent[j].Importance.Ordinal()
	})
	if len(urgent) > maxUrgent {
		urgent = urgent[:maxUrgent]
	}
	return urgent
}
