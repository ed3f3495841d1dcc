package triage

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// summarizeMinChars is the identity threshold: shorter text is
	// returned unchanged.
	summarizeMinChars = 120

	// summaryTargetSentences is how many sentences a summary keeps.
	summaryTargetSentences = 3
)

// sentenceBoundaryRe is the boundary heuristic: sentence-ending
// punctuation followed by whitespace.
var sentenceBoundaryRe = regexp.MustCompile(`[.!?]+\s+`)

// splitSentences cuts text at sentence boundaries, keeping the trailing
// punctuation with each sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundaryRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// Summarize produces a short extractive summary of a block of text.
//
// Text under the identity threshold comes back unchanged. Otherwise the
// text splits into sentences; when there are no more than the target
// count they are all kept. Longer text scores each sentence by the summed
// corpus frequency of its words (stop words excluded) and keeps the top
// sentences, re-emitted in original document order so the output stays
// coherent. Score ties break toward the earlier sentence.
func Summarize(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < summarizeMinChars {
		return text
	}

	sentences := splitSentences(text)
	if len(sentences) <= summaryTargetSentences {
		return strings.Join(sentences, " ")
	}

	freq := termFrequencies(text)

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		total := 0
		for _, tok := range tokenize(s) {
			total += freq[tok]
		}
		ranked[i] = scored{idx: i, score: total}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})

	picked := ranked[:summaryTargetSentences]
	sort.Slice(picked, func(i, j int) bool { return picked[i].idx < picked[j].idx })

	out := make([]string, len(picked))
	for i, p := range picked {
		out[i] = sentences[p.idx]
	}
	return strings.Join(out, " ")
}
