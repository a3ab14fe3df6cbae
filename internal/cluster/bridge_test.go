package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/procbridge"
)

// writeScript drops an executable shell script into the test's temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clustering.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func bridgeBatch() []memstore.EmbeddedMemory {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return []memstore.EmbeddedMemory{
		embedded("m0", base, []float32{1, 0, 0}),
		embedded("m1", base.Add(time.Hour), []float32{1, 0.01, 0}),
		embedded("m2", base.Add(2*time.Hour), []float32{1, 0.02, 0}),
		embedded("m3", base.Add(3*time.Hour), []float32{0, 1, 0}),
	}
}

func TestBridgeTranslatesExternalResult(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
cat > "$2" <<'JSON'
{
  "centroids": [
    {"center": [1, 0.01, 0], "points": [{"id": "m0"}, {"id": "m1"}, {"id": "m2"}]}
  ],
  "topics": ["vector search"]
}
JSON
`)

	bridge := NewBridge(BridgeConfig{
		Bridge: procbridge.New("sh", script, procbridge.WithTempDir(t.TempDir())),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())

	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
	}
	cluster := result.Clusters[0]
	if cluster.Topic != "vector search" {
		t.Errorf("Topic = %q, want routine-provided topic", cluster.Topic)
	}
	if len(cluster.MemberIDs) != 3 {
		t.Errorf("expected 3 members, got %v", cluster.MemberIDs)
	}
	if len(result.Unclustered) != 1 || result.Unclustered[0] != "m3" {
		t.Errorf("Unclustered = %v, want unassigned m3", result.Unclustered)
	}
	if cluster.PercentageOfBatch != 75 {
		t.Errorf("PercentageOfBatch = %v, want 75", cluster.PercentageOfBatch)
	}
}

func TestBridgeCorrelatesByIndex(t *testing.T) {
	// The routine may identify points by index into the input order
	// instead of by id.
	script := writeScript(t, `#!/bin/sh
cat > "$2" <<'JSON'
{
  "centroids": [
    {"center": [1, 0, 0], "points": [{"index": 0}, {"index": 1}]}
  ],
  "topics": [""]
}
JSON
`)

	bridge := NewBridge(BridgeConfig{
		Bridge: procbridge.New("sh", script, procbridge.WithTempDir(t.TempDir())),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())

	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
	}
	cluster := result.Clusters[0]
	if cluster.MemberIDs[0] != "m0" || cluster.MemberIDs[1] != "m1" {
		t.Errorf("MemberIDs = %v, want index-correlated m0, m1", cluster.MemberIDs)
	}
	// The routine left the topic empty, so the labeling chain fills it.
	if cluster.Topic == "" {
		t.Error("empty routine topic should be replaced by a generated label")
	}
}

func TestBridgeFallsBackWhenRoutineFails(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo "no sklearn" >&2
exit 1
`)

	bridge := NewBridge(BridgeConfig{
		Bridge:   procbridge.New("sh", script, procbridge.WithTempDir(t.TempDir())),
		Analyzer: NewAnalyzer(AnalyzerConfig{Threshold: 0.7, MinClusterSize: 3}),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())

	// The in-process analyzer takes over: m0..m2 cluster, m3 is out.
	if len(result.Clusters) != 1 {
		t.Fatalf("expected in-process fallback to produce 1 cluster, got %d", len(result.Clusters))
	}
	if len(result.Clusters[0].MemberIDs) != 3 {
		t.Errorf("expected 3 members, got %v", result.Clusters[0].MemberIDs)
	}
}

func TestBridgeFallsBackWhenRoutineReturnsNothing(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
cat > "$2" <<'JSON'
{"centroids": []}
JSON
`)

	bridge := NewBridge(BridgeConfig{
		Bridge:   procbridge.New("sh", script, procbridge.WithTempDir(t.TempDir())),
		Analyzer: NewAnalyzer(AnalyzerConfig{Threshold: 0.7, MinClusterSize: 3}),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())

	if len(result.Clusters) == 0 {
		t.Fatal("fallback should still produce clusters")
	}
}

func TestBridgeFallsBackWhenNoMemberResolves(t *testing.T) {
	// Centroids referencing out-of-range indices and unknown ids resolve
	// to nothing; the in-process analyzer must take over rather than
	// returning an empty result for a non-empty batch.
	script := writeScript(t, `#!/bin/sh
cat > "$2" <<'JSON'
{
  "centroids": [
    {"center": [1, 0, 0], "points": [{"index": 99}, {"id": "nope"}]}
  ]
}
JSON
`)

	bridge := NewBridge(BridgeConfig{
		Bridge:   procbridge.New("sh", script, procbridge.WithTempDir(t.TempDir())),
		Analyzer: NewAnalyzer(AnalyzerConfig{Threshold: 0.7, MinClusterSize: 3}),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())

	if len(result.Clusters) == 0 {
		t.Fatal("unresolvable routine output should fall back to in-process clustering")
	}
	if result.MemberCount()+len(result.Unclustered) != 4 {
		t.Errorf("expected all 4 points accounted for, got %d clustered and %v unclustered",
			result.MemberCount(), result.Unclustered)
	}
}

func TestBridgeWithoutProcessUsesAnalyzer(t *testing.T) {
	bridge := NewBridge(BridgeConfig{
		Analyzer: NewAnalyzer(AnalyzerConfig{Threshold: 0.7, MinClusterSize: 3}),
	})
	result := bridge.Cluster(context.Background(), bridgeBatch())
	if result.MemberCount() != 4 {
		t.Errorf("member count = %d, want all 4 input points accounted for", result.MemberCount())
	}
}
