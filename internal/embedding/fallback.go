package embedding

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/mindtrail/learningmemory/internal/vector"
)

// DeterministicGenerator produces a fixed-dimension pseudo-random unit
// vector derived from the text itself, so the same text always yields the
// same vector. It exists only so downstream code never receives a nil
// vector; results carry SourceFallback so semantic consumers can skip them.
type DeterministicGenerator struct {
	dimensions int
}

// NewDeterministicGenerator creates the last-resort vector generator.
func NewDeterministicGenerator(dimensions int) *DeterministicGenerator {
	if dimensions <= 0 {
		dimensions = vector.DefaultDimensions
	}
	return &DeterministicGenerator{dimensions: dimensions}
}

// Generate derives a unit-scaled vector from an MD5 hash of the text.
func (g *DeterministicGenerator) Generate(text string) []float32 {
	embedding := make([]float32, g.dimensions)
	hash := md5.Sum([]byte(text))

	for i := 0; i < g.dimensions; i++ {
		// Use 4 bytes from the hash as a seed for each dimension,
		// wrapping around the hash as needed.
		hashIdx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[hashIdx:], hash[:4]...))

		// A value between -1 and 1 based on the seed.
		embedding[i] = float32(seed%1000)/500.0 - 1.0
	}

	vector.UnitNormalize(embedding)
	return embedding
}
