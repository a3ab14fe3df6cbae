// Package learningpath estimates a user's learning trajectory from their
// stored memories by matching content against a fixed topic taxonomy.
package learningpath

import (
	"sort"
	"strings"

	"github.com/mindtrail/learningmemory/internal/memstore"
)

// TopicProgress is one topic's coverage across a user's memories.
type TopicProgress struct {
	Topic      string
	Percentage int
}

// Analysis is the result of one learning-path evaluation.
type Analysis struct {
	Topics      []string
	Progress    []TopicProgress
	Suggestions []string
}

// topicKeywords maps each tracked subject area to the terms that signal it.
var topicKeywords = map[string][]string{
	"Calculus": {
		"calculus", "derivative", "integral", "differential equation",
		"limit", "continuity", "convergence", "series",
	},
	"Linear Algebra": {
		"matrix", "vector", "eigenvalue", "eigenvector",
		"linear transformation", "determinant", "vector space",
	},
	"Probability & Statistics": {
		"probability", "statistics", "distribution", "expectation",
		"variance", "hypothesis test", "regression analysis",
	},
	"Programming Fundamentals": {
		"algorithm", "data structure", "programming", "code",
		"function", "variable", "class", "object",
	},
	"Machine Learning": {
		"model", "training", "prediction", "neural network",
		"classification", "clustering", "regression", "reinforcement learning",
	},
}

// topicOrder fixes the taxonomy's presentation order.
var topicOrder = []string{
	"Calculus",
	"Linear Algebra",
	"Probability & Statistics",
	"Programming Fundamentals",
	"Machine Learning",
}

// Analyze scores each topic by the share of memories mentioning one of its
// keywords and derives study suggestions. Empty input yields the default
// analysis rather than an empty result.
func Analyze(memories []memstore.Memory) Analysis {
	if len(memories) == 0 {
		return DefaultAnalysis()
	}

	counts := make(map[string]int, len(topicOrder))
	for _, topic := range topicOrder {
		for _, mem := range memories {
			content := strings.ToLower(mem.Content)
			for _, keyword := range topicKeywords[topic] {
				if strings.Contains(content, keyword) {
					counts[topic]++
					break
				}
			}
		}
	}

	progress := make([]TopicProgress, 0, len(topicOrder))
	for _, topic := range topicOrder {
		percentage := counts[topic] * 100 / len(memories)
		progress = append(progress, TopicProgress{Topic: topic, Percentage: percentage})
	}
	sort.SliceStable(progress, func(i, j int) bool {
		return progress[i].Percentage > progress[j].Percentage
	})

	return Analysis{
		Topics:      append([]string(nil), topicOrder...),
		Progress:    progress,
		Suggestions: suggestions(progress),
	}
}

// DefaultAnalysis is returned when a user has no memories to analyze.
func DefaultAnalysis() Analysis {
	progress := make([]TopicProgress, 0, len(topicOrder))
	for _, topic := range topicOrder {
		progress = append(progress, TopicProgress{Topic: topic, Percentage: 0})
	}
	return Analysis{
		Topics:   append([]string(nil), topicOrder...),
		Progress: progress,
		Suggestions: []string{
			"Start asking about the subjects you want to learn",
			"Try questions about a specific area of knowledge",
			"Continued conversation helps the system track your progress",
		},
	}
}

// suggestions derives up to three study recommendations from the ranked
// progress list, padding with general advice when needed.
func suggestions(progress []TopicProgress) []string {
	var out []string

	for _, p := range progress {
		if p.Percentage > 20 {
			out = append(out, "You have a solid start on "+p.Topic+"; keep going deeper")
			break
		}
	}
	for _, p := range progress {
		if p.Percentage > 0 && p.Percentage < 10 {
			out = append(out, "Consider exploring more of "+p.Topic)
			break
		}
	}
	zeros := 0
	var firstZero string
	for _, p := range progress {
		if p.Percentage == 0 {
			if firstZero == "" {
				firstZero = p.Topic
			}
			zeros++
		}
	}
	if firstZero != "" && zeros < len(progress) {
		out = append(out, "Try learning the basics of "+firstZero)
	}

	general := []string{
		"Keep asking questions so the analysis of your trajectory improves",
		"Try advanced questions in a specific area",
		"Recommendations adjust as your conversation history grows",
	}
	for _, g := range general {
		if len(out) >= 3 {
			break
		}
		out = append(out, g)
	}
	return out
}
