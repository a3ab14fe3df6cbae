package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindtrail/learningmemory/internal/telemetry"
	"github.com/mindtrail/learningmemory/internal/vector"
)

// Chain tries each configured backend in order until one produces a vector,
// then normalizes it to the configured dimension. When every backend fails
// it falls back to the deterministic generator, so the only errors a caller
// sees are invalid input and the defensive dimension check.
type Chain struct {
	backends   []Backend
	generator  *DeterministicGenerator
	dimensions int
	logger     *slog.Logger
	metrics    *telemetry.MetricsCollector
}

// ChainConfig configures a Chain.
type ChainConfig struct {
	Backends   []Backend
	Dimensions int
	Logger     *slog.Logger
	Metrics    *telemetry.MetricsCollector
}

// NewChain creates the fallback chain. Backends are tried in slice order;
// reordering the chain is a data change, not a code change.
func NewChain(cfg ChainConfig) *Chain {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = vector.DefaultDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewMetricsCollector()
	}
	return &Chain{
		backends:   cfg.Backends,
		generator:  NewDeterministicGenerator(cfg.Dimensions),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Dimensions returns the vector length every result is normalized to.
func (c *Chain) Dimensions() int { return c.dimensions }

// Embed produces a tagged vector for text. Empty or whitespace-only text is
// rejected before any backend is attempted. Text longer than MaxInputLength
// is truncated first.
func (c *Chain) Embed(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordTimer(telemetry.MetricTimeEmbed, time.Since(start))
	}()

	if strings.TrimSpace(text) == "" {
		return Result{}, ErrInvalidInput
	}
	text = truncateRunes(text, MaxInputLength)

	for _, backend := range c.backends {
		c.countAttempt(backend.Name())

		raw, err := backend.TryEmbed(ctx, text)
		if err != nil {
			c.metrics.IncrementCounter(telemetry.MetricBackendFailure, 1)
			c.logger.Warn("embedding backend failed, falling through",
				"backend", backend.Name(), "error", err)
			continue
		}

		normalized := vector.NormalizeDimension(raw, c.dimensions)
		if len(normalized) != c.dimensions {
			return Result{}, fmt.Errorf("%w: backend %s produced %d dimensions, want %d",
				ErrDimensionMismatch, backend.Name(), len(normalized), c.dimensions)
		}

		c.metrics.IncrementCounter(telemetry.MetricBackendSuccess, 1)
		if len(raw) != c.dimensions {
			c.logger.Debug("normalized backend vector",
				"backend", backend.Name(), "raw_dimensions", len(raw), "dimensions", c.dimensions)
		}
		return Result{Vector: normalized, Source: SourceReal}, nil
	}

	// Every real backend is exhausted. The deterministic vector keeps
	// downstream code free of nil checks; the tag lets semantic consumers
	// exclude it.
	c.metrics.IncrementCounter(telemetry.MetricFallbackVectors, 1)
	c.logger.Error("all embedding backends failed, using deterministic fallback vector",
		"backends", len(c.backends))
	return Result{Vector: c.generator.Generate(text), Source: SourceFallback}, nil
}

// truncateRunes cuts s to at most n characters, never splitting a
// multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func (c *Chain) countAttempt(name string) {
	switch name {
	case "service":
		c.metrics.IncrementCounter(telemetry.MetricBackendCallsService, 1)
	case "script":
		c.metrics.IncrementCounter(telemetry.MetricBackendCallsScript, 1)
	case "sdk":
		c.metrics.IncrementCounter(telemetry.MetricBackendCallsSDK, 1)
	}
}
