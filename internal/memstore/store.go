// Package memstore provides storage interfaces and the SQLite implementation
// for the two tables the embedding pipeline touches: memories and their
// embedding rows.
package memstore

import (
	"time"
)

// Embedding sources, persisted alongside each vector so downstream readers
// can tell a genuine embedding from the deterministic last-resort vector.
const (
	SourceReal     = "real"
	SourceFallback = "fallback"
)

// Memory is one stored conversation fragment. Immutable once created except
// for the derived summary and keyword fields.
type Memory struct {
	ID        string
	UserID    int64
	Content   string
	Summary   string
	Keywords  []string
	Type      string
	Timestamp time.Time
}

// Embedding is the stored vector for one memory. At most one row exists per
// memory id.
type Embedding struct {
	MemoryID  string
	Vector    []float32
	Source    string
	CreatedAt time.Time
}

// ScoredMemory pairs a memory with its similarity to a query vector.
type ScoredMemory struct {
	Memory     Memory
	Similarity float64
}

// EmbeddedMemory pairs a memory with its stored vector, as pulled for a
// clustering batch.
type EmbeddedMemory struct {
	Memory Memory
	Vector []float32
	Source string
}

// Store defines the storage contract the pipeline depends on.
type Store interface {
	// Initialize initializes the store with configuration options.
	Initialize(dbPath string) error

	// Close closes the store and releases any resources.
	Close() error

	// SaveMemory persists a new memory row.
	SaveMemory(m Memory) error

	// GetMemory returns a memory by id, or nil when absent.
	GetMemory(id string) (*Memory, error)

	// GetEmbeddingByMemoryID returns the stored embedding for a memory,
	// or nil when the memory has no embedding row.
	GetEmbeddingByMemoryID(id string) (*Embedding, error)

	// SaveMemoryEmbedding stores the vector for a memory with
	// insert-if-absent semantics: an existing row is left untouched.
	SaveMemoryEmbedding(id string, vector []float32, source string) error

	// FindMemoriesMissingEmbedding returns up to limit memories that have
	// no embedding row, oldest first.
	FindMemoriesMissingEmbedding(limit int) ([]Memory, error)

	// FindSimilarMemories ranks a user's embedded memories by cosine
	// similarity to the query vector. Fallback-sourced vectors are
	// excluded unless includeFallback is set.
	FindSimilarMemories(userID int64, queryVector []float32, limit int, includeFallback bool) ([]ScoredMemory, error)

	// ListEmbedded returns all of a user's memories that have a stored
	// vector, oldest first, for a clustering run.
	ListEmbedded(userID int64) ([]EmbeddedMemory, error)

	// DeleteMemory removes a memory and its embedding row.
	DeleteMemory(id string) error
}
