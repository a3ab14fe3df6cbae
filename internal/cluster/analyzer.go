package cluster

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/telemetry"
	"github.com/mindtrail/learningmemory/internal/vector"
)

const (
	// DefaultThreshold is the minimum cosine similarity for two memories
	// to end up in the same cluster.
	DefaultThreshold = 0.7

	// DefaultMinClusterSize is the smallest group reported as a cluster.
	// Smaller groups are returned as unclustered.
	DefaultMinClusterSize = 3
)

// Time-partition topics, oldest first, used when no valid clusters form.
var timePartitionTopics = [3]string{
	"Earliest memories",
	"Middle period",
	"Most recent",
}

// Analyzer performs one-pass agglomerative clustering over a batch of
// embedded memories. It holds no state between runs.
type Analyzer struct {
	threshold      float64
	minClusterSize int
	labeler        *Labeler
	logger         *slog.Logger
	metrics        *telemetry.MetricsCollector
}

// AnalyzerConfig configures an Analyzer. Zero values select the defaults.
type AnalyzerConfig struct {
	Threshold      float64
	MinClusterSize int
	Labeler        *Labeler
	Logger         *slog.Logger
	Metrics        *telemetry.MetricsCollector
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = DefaultMinClusterSize
	}
	if cfg.Labeler == nil {
		cfg.Labeler = NewLabeler(LabelerConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{
		threshold:      cfg.Threshold,
		minClusterSize: cfg.MinClusterSize,
		labeler:        cfg.Labeler,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

type scoredPair struct {
	i, j       int
	similarity float64
}

// Cluster partitions the batch into labeled clusters. It always returns a
// usable result for non-empty input: when no group reaches the minimum
// cluster size it falls back to a time-based partition instead of returning
// nothing.
func (a *Analyzer) Cluster(ctx context.Context, batch []memstore.EmbeddedMemory) Result {
	start := time.Now()
	if a.metrics != nil {
		a.metrics.IncrementCounter(telemetry.MetricClusterRuns, 1)
		defer func() { a.metrics.RecordTimer(telemetry.MetricTimeCluster, time.Since(start)) }()
	}

	if len(batch) == 0 {
		return Result{}
	}

	memberships := a.merge(batch)
	clusters, unclustered := a.collect(batch, memberships)

	if len(clusters) == 0 {
		a.logger.Info("no clusters reached the minimum size, using time partition",
			"points", len(batch), "threshold", a.threshold)
		if a.metrics != nil {
			a.metrics.IncrementCounter(telemetry.MetricClusterUnderflow, 1)
		}
		return a.timePartition(batch)
	}

	for i := range clusters {
		clusters[i].Topic = a.labeler.Label(ctx, labelInput(batch, clusters[i]))
	}

	a.logger.Info("clustering complete",
		"points", len(batch), "clusters", len(clusters), "unclustered", len(unclustered))
	return Result{Clusters: clusters, Unclustered: unclustered}
}

// merge runs the agglomerative pass and returns each point's cluster label.
func (a *Analyzer) merge(batch []memstore.EmbeddedMemory) []int {
	n := len(batch)

	pairs := make([]scoredPair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim, err := vector.CosineSimilarity(batch[i].Vector, batch[j].Vector)
			if err != nil {
				// Dimension drift between rows; treat as no similarity.
				a.logger.Warn("skipping incomparable pair",
					"first", batch[i].Memory.ID, "second", batch[j].Memory.ID, "error", err)
				continue
			}
			pairs = append(pairs, scoredPair{i: i, j: j, similarity: sim})
		}
	}

	// Stable sort keeps equal-similarity pairs in discovery order, which
	// makes merge order, and therefore membership, reproducible.
	sort.SliceStable(pairs, func(x, y int) bool {
		return pairs[x].similarity > pairs[y].similarity
	})

	memberships := make([]int, n)
	for i := range memberships {
		memberships[i] = i
	}

	for _, pair := range pairs {
		if pair.similarity < a.threshold {
			break
		}
		from, into := memberships[pair.j], memberships[pair.i]
		if from == into {
			continue
		}
		for k := range memberships {
			if memberships[k] == from {
				memberships[k] = into
			}
		}
	}
	return memberships
}

// collect groups points by membership label, drops groups below the minimum
// size into the unclustered list, and computes centroids and batch shares.
func (a *Analyzer) collect(batch []memstore.EmbeddedMemory, memberships []int) ([]Cluster, []string) {
	n := len(batch)

	groups := make(map[int][]int)
	order := make([]int, 0)
	for i, label := range memberships {
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], i)
	}

	var clusters []Cluster
	var unclustered []string
	for _, label := range order {
		members := groups[label]
		if len(members) < a.minClusterSize {
			for _, idx := range members {
				unclustered = append(unclustered, batch[idx].Memory.ID)
			}
			continue
		}

		ids := make([]string, len(members))
		for i, idx := range members {
			ids[i] = batch[idx].Memory.ID
		}
		clusters = append(clusters, Cluster{
			ID:                len(clusters),
			MemberIDs:         ids,
			Centroid:          centroid(batch, members),
			PercentageOfBatch: float64(len(members)) / float64(n) * 100,
		})
	}
	return clusters, unclustered
}

// timePartition splits the batch into oldest, middle, and most-recent
// thirds by timestamp. Empty thirds are dropped, so small batches come back
// as one or two groups with every input id accounted for.
func (a *Analyzer) timePartition(batch []memstore.EmbeddedMemory) Result {
	n := len(batch)

	byTime := make([]int, n)
	for i := range byTime {
		byTime[i] = i
	}
	sort.SliceStable(byTime, func(x, y int) bool {
		return batch[byTime[x]].Memory.Timestamp.Before(batch[byTime[y]].Memory.Timestamp)
	})

	var clusters []Cluster
	for third := 0; third < 3; third++ {
		lo, hi := third*n/3, (third+1)*n/3
		if lo == hi {
			continue
		}
		members := byTime[lo:hi]
		ids := make([]string, len(members))
		for i, idx := range members {
			ids[i] = batch[idx].Memory.ID
		}
		clusters = append(clusters, Cluster{
			ID:                len(clusters),
			MemberIDs:         ids,
			Topic:             timePartitionTopics[third],
			Centroid:          centroid(batch, members),
			PercentageOfBatch: float64(len(members)) / float64(n) * 100,
		})
	}
	return Result{Clusters: clusters, TimePartitioned: true}
}

// centroid averages the member vectors. Returns nil when members have no
// comparable vectors.
func centroid(batch []memstore.EmbeddedMemory, members []int) []float32 {
	if len(members) == 0 {
		return nil
	}
	dims := len(batch[members[0]].Vector)
	if dims == 0 {
		return nil
	}

	sum := make([]float64, dims)
	counted := 0
	for _, idx := range members {
		vec := batch[idx].Vector
		if len(vec) != dims {
			continue
		}
		for d, v := range vec {
			sum[d] += float64(v)
		}
		counted++
	}
	if counted == 0 {
		return nil
	}

	center := make([]float32, dims)
	for d := range sum {
		center[d] = float32(sum[d] / float64(counted))
	}
	return center
}

// labelInput assembles the labeling view of one cluster.
func labelInput(batch []memstore.EmbeddedMemory, c Cluster) Info {
	byID := make(map[string]memstore.Memory, len(batch))
	for _, em := range batch {
		byID[em.Memory.ID] = em.Memory
	}

	members := make([]memstore.Memory, 0, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		if m, ok := byID[id]; ok {
			members = append(members, m)
		}
	}
	return Info{Members: members, Centroid: c.Centroid, Size: len(c.MemberIDs)}
}
