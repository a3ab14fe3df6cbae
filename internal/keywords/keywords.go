// Package keywords extracts representative terms from memory content. The
// terms are stored with each memory and reused when labeling clusters.
package keywords

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultMaxKeywords caps how many terms Extract returns.
const DefaultMaxKeywords = 5

// MinTokenLength filters out short tokens that carry little meaning.
const MinTokenLength = 3

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "had": true, "this": true, "that": true, "with": true,
	"from": true, "they": true, "been": true, "were": true, "their": true,
	"there": true, "what": true, "when": true, "which": true, "will": true,
	"would": true, "could": true, "should": true, "about": true,
	"into": true, "than": true, "then": true, "them": true, "these": true,
	"some": true, "more": true, "very": true, "just": true, "also": true,
	"how": true, "its": true, "your": true, "because": true, "other": true,
	"learned": true, "learning": true, "today": true, "using": true,
}

// Tokenize lowercases text and splits it on any non-letter, non-digit rune.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Extract returns up to maxTerms of the most frequent meaningful tokens in
// text, most frequent first. Ties break on first appearance so the result is
// stable for a given input.
func Extract(text string, maxTerms int) []string {
	if maxTerms <= 0 {
		maxTerms = DefaultMaxKeywords
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, token := range Tokenize(text) {
		if len(token) < MinTokenLength || stopwords[token] {
			continue
		}
		if _, seen := counts[token]; !seen {
			firstSeen[token] = i
		}
		counts[token]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})

	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	return terms
}

// IsStopword reports whether token is filtered during extraction.
func IsStopword(token string) bool {
	return stopwords[strings.ToLower(token)]
}
