package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/procbridge"
	"github.com/mindtrail/learningmemory/internal/telemetry"
)

// bridgePoint is one entry of the serialized batch. Order is preserved so
// index-based results from the external routine stay valid.
type bridgePoint struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// bridgeMember identifies a clustered point in the routine's output, either
// directly by id or by index into the input order.
type bridgeMember struct {
	ID    string `json:"id,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type bridgeCentroid struct {
	Center []float32      `json:"center"`
	Points []bridgeMember `json:"points"`
}

type bridgeOutput struct {
	Centroids []bridgeCentroid `json:"centroids"`
	Topics    []string         `json:"topics"`
}

// Bridge delegates the clustering computation to an external routine for
// batches where the in-process pairwise pass is too slow, falling back to
// the in-process Analyzer when the routine fails or returns nothing.
type Bridge struct {
	bridge   *procbridge.Bridge
	analyzer *Analyzer
	logger   *slog.Logger
	metrics  *telemetry.MetricsCollector
}

// BridgeConfig configures a clustering Bridge.
type BridgeConfig struct {
	Bridge   *procbridge.Bridge
	Analyzer *Analyzer
	Logger   *slog.Logger
	Metrics  *telemetry.MetricsCollector
}

// NewBridge creates a clustering Bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = NewAnalyzer(AnalyzerConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	return &Bridge{
		bridge:   cfg.Bridge,
		analyzer: cfg.Analyzer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Cluster runs the external routine over the batch and maps its output back
// onto the input memories. Any failure degrades to the in-process analyzer,
// so the caller always receives a usable result.
func (b *Bridge) Cluster(ctx context.Context, batch []memstore.EmbeddedMemory) Result {
	if len(batch) == 0 {
		return Result{}
	}
	if b.bridge == nil {
		return b.analyzer.Cluster(ctx, batch)
	}

	start := time.Now()
	if b.metrics != nil {
		b.metrics.IncrementCounter(telemetry.MetricClusterBridgeRuns, 1)
		defer func() { b.metrics.RecordTimer(telemetry.MetricTimeBridge, time.Since(start)) }()
	}

	input := make([]bridgePoint, len(batch))
	for i, em := range batch {
		input[i] = bridgePoint{ID: em.Memory.ID, Vector: em.Vector}
	}

	var output bridgeOutput
	if err := b.bridge.Run(ctx, input, &output); err != nil {
		b.logger.Warn("external clustering failed, using in-process analyzer", "error", err)
		return b.analyzer.Cluster(ctx, batch)
	}
	if len(output.Centroids) == 0 {
		b.logger.Info("external clustering returned no centroids, using in-process analyzer",
			"points", len(batch))
		return b.analyzer.Cluster(ctx, batch)
	}

	result := b.translate(ctx, batch, output)
	if len(result.Clusters) == 0 {
		// Centroids whose member references never resolved leave nothing
		// usable; treat it like a failed run.
		b.logger.Warn("external clustering output resolved to no clusters, using in-process analyzer",
			"points", len(batch), "centroids", len(output.Centroids))
		return b.analyzer.Cluster(ctx, batch)
	}
	return result
}

// translate maps the routine's centroids back onto input memory ids and
// labels any cluster the routine left unnamed. Each input id ends up in at
// most one cluster; ids the routine never assigned come back unclustered.
func (b *Bridge) translate(ctx context.Context, batch []memstore.EmbeddedMemory, output bridgeOutput) Result {
	n := len(batch)
	assigned := make(map[string]bool, n)
	known := make(map[string]bool, n)
	for _, em := range batch {
		known[em.Memory.ID] = true
	}

	var clusters []Cluster
	for ci, centroid := range output.Centroids {
		var ids []string
		for _, point := range centroid.Points {
			id := point.ID
			if id == "" && point.Index != nil && *point.Index >= 0 && *point.Index < n {
				id = batch[*point.Index].Memory.ID
			}
			if id == "" || !known[id] || assigned[id] {
				continue
			}
			assigned[id] = true
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}

		cluster := Cluster{
			ID:                len(clusters),
			MemberIDs:         ids,
			Centroid:          centroid.Center,
			PercentageOfBatch: float64(len(ids)) / float64(n) * 100,
		}
		if ci < len(output.Topics) {
			cluster.Topic = output.Topics[ci]
		}
		if cluster.Topic == "" {
			cluster.Topic = b.analyzer.labeler.Label(ctx, labelInput(batch, cluster))
		}
		clusters = append(clusters, cluster)
	}

	var unclustered []string
	for _, em := range batch {
		if !assigned[em.Memory.ID] {
			unclustered = append(unclustered, em.Memory.ID)
		}
	}

	b.logger.Info("external clustering complete",
		"points", n, "clusters", len(clusters), "unclustered", len(unclustered))
	return Result{Clusters: clusters, Unclustered: unclustered}
}
