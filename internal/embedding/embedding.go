// Package embedding produces fixed-dimension vectors for memory text
// through an ordered chain of interchangeable backends. Backends are tried
// in order until one succeeds; the final deterministic backend always
// succeeds, so callers never receive a nil vector, but its output is tagged
// so downstream readers can tell it apart from a genuine embedding.
package embedding

import (
	"context"
	"errors"
)

const (
	// MaxInputLength caps the number of characters submitted to any backend.
	// Longer text is truncated before the first attempt.
	MaxInputLength = 1000
)

// Source marks whether a vector came from a real embedding backend or from
// the deterministic last-resort generator.
type Source string

const (
	SourceReal     Source = "real"
	SourceFallback Source = "fallback"
)

// Result is a tagged embedding vector.
type Result struct {
	Vector []float32
	Source Source
}

var (
	// ErrInvalidInput rejects empty or whitespace-only text before any
	// backend is attempted.
	ErrInvalidInput = errors.New("embedding input is empty")

	// ErrDimensionMismatch reports a backend vector whose length still
	// differs from the configured dimension after normalization. It should
	// not occur; it is checked defensively.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBackendUnavailable marks a backend that could not be reached or
	// started. It triggers fallthrough to the next backend in the chain.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
)

// Backend is one embedding strategy. TryEmbed returns the raw vector in
// whatever dimension the backend natively produces; the chain normalizes.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// TryEmbed converts text into a raw vector or fails.
	TryEmbed(ctx context.Context, text string) ([]float32, error)
}
