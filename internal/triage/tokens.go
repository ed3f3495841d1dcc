package triage

import (
	"regexp"
	"strings"
)

// wordRe matches lowercase word tokens of length >= 3 over the Latin and
// Cyrillic alphabets plus digits. Text is lowercased before matching.
var wordRe = regexp.MustCompile(`[a-zа-яё0-9]{3,}`)

// stopWords are dropped from term frequencies and sentence scores.
// Tokens shorter than three characters never reach this set.
var stopWords = map[string]struct{}{
	// Russian
	"это": {}, "как": {}, "что": {}, "чтобы": {}, "для": {}, "или": {},
	"если": {}, "когда": {}, "уже": {}, "еще": {}, "ещё": {}, "только": {},
	"они": {}, "она": {}, "оно": {}, "мне": {}, "меня": {}, "тебя": {},
	"тебе": {}, "вас": {}, "нас": {}, "его": {}, "все": {}, "всё": {},
	"есть": {}, "был": {}, "была": {}, "были": {}, "было": {}, "будет": {},
	"нет": {}, "так": {}, "там": {}, "тут": {}, "вот": {}, "при": {},
	"над": {}, "под": {}, "про": {}, "без": {}, "может": {}, "очень": {},
	"просто": {}, "теперь": {}, "после": {}, "даже": {},
	// English
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "any": {}, "can": {}, "had": {}, "has": {},
	"have": {}, "this": {}, "that": {}, "with": {}, "from": {}, "they": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "what": {},
	"which": {}, "when": {}, "your": {}, "just": {}, "like": {},
	"some": {}, "been": {}, "were": {}, "into": {}, "than": {},
	"them": {}, "then": {}, "over": {}, "such": {}, "only": {},
	"also": {}, "very": {}, "was": {}, "about": {}, "out": {},
}

// tokenize splits text into lowercase word tokens, stop words excluded.
func tokenize(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// termFrequencies counts token occurrences across a block of text.
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokenize(text) {
		freq[tok]++
	}
	return freq
}
