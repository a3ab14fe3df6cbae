// Package vector provides the pure vector math used by the embedding and
// clustering pipeline: cosine similarity, dimension normalization, and the
// byte codec used to persist vectors as SQLite BLOBs.
package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// DefaultDimensions is the system-wide embedding vector length. Every
	// backend's output is normalized to this length before it leaves the
	// embedding layer.
	DefaultDimensions = 3072
)

// CosineSimilarity returns the directional closeness of two vectors as a
// value in [0, 1]. A zero-magnitude vector yields 0, and negative cosine
// values are clamped to 0: opposite-pointing vectors are treated as having
// no similarity rather than negative similarity.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same dimension: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0, nil
	}
	if sim > 1 {
		return 1, nil
	}
	return sim, nil
}

// NormalizeDimension forces a vector to exactly dims elements. A shorter
// vector is tile-repeated and truncated; a longer one is truncated. Tiling
// is not a faithful semantic embedding, but it keeps the dimension
// invariant independent of which backend produced the raw vector.
func NormalizeDimension(v []float32, dims int) []float32 {
	if dims <= 0 || len(v) == 0 {
		return make([]float32, maxInt(dims, 0))
	}

	if len(v) >= dims {
		out := make([]float32, dims)
		copy(out, v[:dims])
		return out
	}

	out := make([]float32, dims)
	for i := range out {
		out[i] = v[i%len(v)]
	}
	return out
}

// UnitNormalize scales the vector to unit length in place. A zero vector is
// left unchanged.
func UnitNormalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}

	magnitude := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= magnitude
	}
}

// Float32SliceToBytes converts a slice of float32 to a byte slice.
func Float32SliceToBytes(floats []float32) ([]byte, error) {
	buf := new(bytes.Buffer)

	// First write the length of the slice
	err := binary.Write(buf, binary.LittleEndian, int32(len(floats)))
	if err != nil {
		return nil, fmt.Errorf("failed to write vector length: %w", err)
	}

	err = binary.Write(buf, binary.LittleEndian, floats)
	if err != nil {
		return nil, fmt.Errorf("failed to write vector values: %w", err)
	}

	return buf.Bytes(), nil
}

// BytesToFloat32Slice converts a byte slice back to a slice of float32.
func BytesToFloat32Slice(data []byte) ([]float32, error) {
	buf := bytes.NewReader(data)

	var length int32
	err := binary.Read(buf, binary.LittleEndian, &length)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector length: %w", err)
	}

	// The prefix comes from stored bytes; never trust it for allocation.
	if length < 0 || int(length)*4 > len(data)-4 {
		return nil, fmt.Errorf("corrupt vector data: length prefix %d does not fit %d bytes", length, len(data))
	}

	floats := make([]float32, length)
	err = binary.Read(buf, binary.LittleEndian, floats)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector values: %w", err)
	}

	return floats, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
