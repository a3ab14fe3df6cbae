// Package cluster groups embedded memories into labeled topics using
// similarity-threshold agglomerative clustering, with an external routine
// available for large batches.
package cluster

// Cluster is one group produced by a clustering run. Membership and topic
// are recomputed from scratch each run; the id indexes into that run's
// cluster list only.
type Cluster struct {
	ID                int
	MemberIDs         []string
	Topic             string
	Centroid          []float32
	PercentageOfBatch float64
}

// Result is the outcome of one clustering run. Every input memory id
// appears either in exactly one cluster or in Unclustered.
type Result struct {
	Clusters    []Cluster
	Unclustered []string

	// TimePartitioned is set when the run fell back to the default
	// time-based grouping because no valid clusters formed.
	TimePartitioned bool
}

// MemberCount returns the total number of ids across clusters and the
// unclustered list.
func (r Result) MemberCount() int {
	total := len(r.Unclustered)
	for _, c := range r.Clusters {
		total += len(c.MemberIDs)
	}
	return total
}
