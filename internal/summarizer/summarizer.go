// Package summarizer condenses memory content into the short summaries
// stored alongside each memory and used for topic labeling.
package summarizer

import "strings"

// DefaultMaxSummaryLength is the default cap on generated summaries.
const DefaultMaxSummaryLength = 200

// Summarizer condenses text content.
type Summarizer interface {
	Summarize(text string) (string, error)
}

// BasicSummarizer truncates text at sentence boundaries. It needs no model
// and never fails, which makes it the terminal strategy for summary
// generation.
type BasicSummarizer struct {
	maxLen int
}

// NewBasicSummarizer creates a summarizer that caps summaries at maxLen
// characters, falling back to DefaultMaxSummaryLength for non-positive caps.
func NewBasicSummarizer(maxLen int) *BasicSummarizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxSummaryLength
	}
	return &BasicSummarizer{maxLen: maxLen}
}

// Summarize truncates text to the configured length, preferring a sentence
// boundary, then a word boundary, before cutting mid-word.
func (s *BasicSummarizer) Summarize(text string) (string, error) {
	if len(text) <= s.maxLen {
		return text, nil
	}

	truncated := text[:s.maxLen]

	// Prefer ending on a complete sentence.
	boundary := -1
	for _, terminator := range []string{".", "?", "!"} {
		if idx := strings.LastIndex(truncated, terminator); idx > boundary {
			boundary = idx
		}
	}
	if boundary > 0 {
		return text[:boundary+1], nil
	}

	// Otherwise end on a word boundary with an ellipsis.
	const ellipsis = "..."
	cut := s.maxLen - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	truncated = text[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		return text[:lastSpace] + ellipsis, nil
	}

	return truncated + ellipsis, nil
}
