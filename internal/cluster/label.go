package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/mindtrail/learningmemory/internal/keywords"
	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/telemetry"
)

const (
	// MaxLabelLength caps every generated topic label.
	MaxLabelLength = 60

	// aiSampleSize is how many member texts the AI labeler sees.
	aiSampleSize = 3

	// fallbackTopic is returned only if every strategy, including the
	// raw-content one, produced nothing.
	fallbackTopic = "General notes"
)

// Info is the labeling view of one cluster.
type Info struct {
	Members  []memstore.Memory
	Centroid []float32
	Size     int
}

// Strategy produces a topic label for a cluster. An empty string or error
// means the strategy cannot label this cluster and the next one is tried.
type Strategy interface {
	Name() string
	TryLabel(ctx context.Context, info Info) (string, error)
}

// Labeler walks an ordered strategy list until one produces a label. The
// list always ends with strategies that need no external service, so every
// cluster gets a topic.
type Labeler struct {
	strategies []Strategy
	logger     *slog.Logger
	metrics    *telemetry.MetricsCollector
}

// LabelerConfig configures a Labeler. When Strategies is empty the default
// chain is used: AI (only if Model is set), stored keywords, content term
// frequency, stored summary, raw content.
type LabelerConfig struct {
	Strategies []Strategy
	Model      *AIStrategy
	Logger     *slog.Logger
	Metrics    *telemetry.MetricsCollector
}

// NewLabeler creates a Labeler.
func NewLabeler(cfg LabelerConfig) *Labeler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	strategies := cfg.Strategies
	if len(strategies) == 0 {
		if cfg.Model != nil {
			strategies = append(strategies, cfg.Model)
		}
		strategies = append(strategies,
			&StoredKeywordStrategy{},
			&TermFrequencyStrategy{},
			&SummaryStrategy{},
			&RawContentStrategy{},
		)
	}
	return &Labeler{strategies: strategies, logger: cfg.Logger, metrics: cfg.Metrics}
}

var labelMetrics = map[string]string{
	"ai":        telemetry.MetricLabelsAI,
	"keywords":  telemetry.MetricLabelsKeyword,
	"frequency": telemetry.MetricLabelsFrequency,
	"summary":   telemetry.MetricLabelsSummary,
	"content":   telemetry.MetricLabelsContent,
}

// Label returns a topic for the cluster, trying each strategy in order.
func (l *Labeler) Label(ctx context.Context, info Info) string {
	for _, strategy := range l.strategies {
		label, err := strategy.TryLabel(ctx, info)
		if err != nil {
			l.logger.Debug("label strategy failed", "strategy", strategy.Name(), "error", err)
			continue
		}
		label = truncateLabel(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if l.metrics != nil {
			if metric, ok := labelMetrics[strategy.Name()]; ok {
				l.metrics.IncrementCounter(metric, 1)
			}
		}
		return label
	}
	return fallbackTopic
}

// AIStrategy asks a generative model to name the cluster from a sample of
// member texts and the cluster's common keywords.
type AIStrategy struct {
	client    *genai.Client
	modelName string
}

// NewAIStrategy creates the model-backed labeling strategy.
func NewAIStrategy(client *genai.Client, modelName string) *AIStrategy {
	return &AIStrategy{client: client, modelName: modelName}
}

func (s *AIStrategy) Name() string { return "ai" }

func (s *AIStrategy) TryLabel(ctx context.Context, info Info) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no model client configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Name the shared topic of these %d related notes in at most five words. ", info.Size)
	sb.WriteString("Answer with the topic only.\n")
	if common := commonKeywords(info.Members, 5); len(common) > 0 {
		fmt.Fprintf(&sb, "Common keywords: %s\n", strings.Join(common, ", "))
	}
	for i, m := range info.Members {
		if i >= aiSampleSize {
			break
		}
		fmt.Fprintf(&sb, "Note %d: %s\n", i+1, firstChars(m.Content, 200))
	}

	content := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: sb.String()}},
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.modelName,
		[]*genai.Content{content}, &genai.GenerateContentConfig{})
	if err != nil {
		return "", fmt.Errorf("failed to generate label: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty model response")
	}

	label := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	return strings.Trim(label, `"'`), nil
}

// StoredKeywordStrategy joins the three most common keywords already stored
// on the member memories.
type StoredKeywordStrategy struct{}

func (s *StoredKeywordStrategy) Name() string { return "keywords" }

func (s *StoredKeywordStrategy) TryLabel(ctx context.Context, info Info) (string, error) {
	common := commonKeywords(info.Members, 3)
	return strings.Join(common, ", "), nil
}

// TermFrequencyStrategy extracts the top terms from the members' raw
// content when no keywords were stored.
type TermFrequencyStrategy struct{}

func (s *TermFrequencyStrategy) Name() string { return "frequency" }

func (s *TermFrequencyStrategy) TryLabel(ctx context.Context, info Info) (string, error) {
	var sb strings.Builder
	for _, m := range info.Members {
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	return strings.Join(keywords.Extract(sb.String(), 3), ", "), nil
}

// SummaryStrategy uses the first available stored summary.
type SummaryStrategy struct{}

func (s *SummaryStrategy) Name() string { return "summary" }

func (s *SummaryStrategy) TryLabel(ctx context.Context, info Info) (string, error) {
	for _, m := range info.Members {
		if summary := strings.TrimSpace(m.Summary); summary != "" {
			return summary, nil
		}
	}
	return "", nil
}

// RawContentStrategy cleans and truncates one representative member's
// content. It is the terminal strategy and succeeds for any member with
// non-empty content.
type RawContentStrategy struct{}

func (s *RawContentStrategy) Name() string { return "content" }

var markupPattern = regexp.MustCompile("[`*_#>\"'\\[\\]{}()]+")

func (s *RawContentStrategy) TryLabel(ctx context.Context, info Info) (string, error) {
	for _, m := range info.Members {
		cleaned := markupPattern.ReplaceAllString(m.Content, " ")
		cleaned = strings.Join(strings.Fields(cleaned), " ")
		if cleaned == "" {
			continue
		}

		// Prefer ending at the first sentence.
		for _, terminator := range []string{". ", "? ", "! "} {
			if idx := strings.Index(cleaned, terminator); idx > 0 && idx < MaxLabelLength {
				return cleaned[:idx+1], nil
			}
		}
		return cleaned, nil
	}
	return "", nil
}

// commonKeywords ranks the stored keywords across members by frequency and
// returns up to maxTerms, ties broken by first appearance.
func commonKeywords(members []memstore.Memory, maxTerms int) []string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		for _, kw := range m.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if counts[kw] == 0 {
				order = append(order, kw)
			}
			counts[kw]++
		}
	}

	ranked := make([]string, len(order))
	copy(ranked, order)
	// Stable insertion-order base, then frequency.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && counts[ranked[j]] > counts[ranked[j-1]]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	if len(ranked) > maxTerms {
		ranked = ranked[:maxTerms]
	}
	return ranked
}

// truncateLabel caps a label near a word boundary.
func truncateLabel(label string) string {
	if len(label) <= MaxLabelLength {
		return label
	}
	truncated := label[:MaxLabelLength]
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

// firstChars truncates s to at most n bytes.
func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
