package memstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"crawshaw.io/sqlite"

	"github.com/mindtrail/learningmemory/internal/vector"
)

// SQLiteStore is an implementation of Store that uses SQLite. A single
// connection is shared between the foreground service and the background
// embedding worker, so every method serializes on the mutex.
type SQLiteStore struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	dbPath string
}

// NewSQLiteStore creates a new SQLiteStore instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Initialize initializes the store with the given database path.
func (s *SQLiteStore) Initialize(dbPath string) error {
	s.dbPath = dbPath

	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	s.conn = conn

	if err := s.createTables(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

func (s *SQLiteStore) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '[]',
			type TEXT NOT NULL DEFAULT 'chat',
			timestamp INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
			vector BLOB NOT NULL,
			source TEXT NOT NULL DEFAULT 'real',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_time ON memories(user_id, timestamp);`,
	}

	for _, sql := range statements {
		if err := s.exec(sql); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) exec(sql string) error {
	stmt, err := s.conn.Prepare(sql)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// Close closes the store and releases any resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// SaveMemory persists a new memory row.
func (s *SQLiteStore) SaveMemory(m Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keywords, err := json.Marshal(m.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	insertSQL := `
	INSERT OR REPLACE INTO memories (id, user_id, content, summary, keywords, type, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?);`

	stmt, err := s.conn.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, m.ID)
	stmt.BindInt64(2, m.UserID)
	stmt.BindText(3, m.Content)
	stmt.BindText(4, m.Summary)
	stmt.BindText(5, string(keywords))
	stmt.BindText(6, m.Type)
	stmt.BindInt64(7, m.Timestamp.Unix())

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// GetMemory returns a memory by id, or nil when absent.
func (s *SQLiteStore) GetMemory(id string) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selectSQL := `
	SELECT id, user_id, content, summary, keywords, type, timestamp
	FROM memories WHERE id = ?;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, id)

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	if !hasRow {
		return nil, nil
	}

	m, err := scanMemory(stmt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetEmbeddingByMemoryID returns the stored embedding for a memory, or nil
// when the memory has no embedding row.
func (s *SQLiteStore) GetEmbeddingByMemoryID(id string) (*Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selectSQL := `
	SELECT memory_id, vector, source, created_at
	FROM memory_embeddings WHERE memory_id = ?;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, id)

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding: %w", err)
	}
	if !hasRow {
		return nil, nil
	}

	vectorLen := stmt.ColumnLen(1)
	vectorBytes := make([]byte, vectorLen)
	stmt.ColumnBytes(1, vectorBytes)

	vec, err := vector.BytesToFloat32Slice(vectorBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
	}

	return &Embedding{
		MemoryID:  stmt.ColumnText(0),
		Vector:    vec,
		Source:    stmt.ColumnText(2),
		CreatedAt: time.Unix(stmt.ColumnInt64(3), 0),
	}, nil
}

// SaveMemoryEmbedding stores the vector for a memory with insert-if-absent
// semantics: an existing row is left untouched.
func (s *SQLiteStore) SaveMemoryEmbedding(id string, vec []float32, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := vector.Float32SliceToBytes(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	insertSQL := `
	INSERT OR IGNORE INTO memory_embeddings (memory_id, vector, source, created_at)
	VALUES (?, ?, ?, ?);`

	stmt, err := s.conn.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, id)
	stmt.BindBytes(2, data)
	stmt.BindText(3, source)
	stmt.BindInt64(4, time.Now().Unix())

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// FindMemoriesMissingEmbedding returns up to limit memories that have no
// embedding row, oldest first.
func (s *SQLiteStore) FindMemoriesMissingEmbedding(limit int) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selectSQL := `
	SELECT m.id, m.user_id, m.content, m.summary, m.keywords, m.type, m.timestamp
	FROM memories m
	LEFT JOIN memory_embeddings e ON e.memory_id = m.id
	WHERE e.memory_id IS NULL
	ORDER BY m.timestamp ASC
	LIMIT ?;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindInt64(1, int64(limit))

	var memories []Memory
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to query missing embeddings: %w", err)
		}
		if !hasRow {
			break
		}

		m, err := scanMemory(stmt)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}

	return memories, nil
}

// FindSimilarMemories ranks a user's embedded memories by cosine similarity
// to the query vector. Similarity is computed in Go; nearest-neighbor search
// stays inside the store so callers never touch raw vectors.
func (s *SQLiteStore) FindSimilarMemories(userID int64, queryVector []float32, limit int, includeFallback bool) ([]ScoredMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selectSQL := `
	SELECT m.id, m.user_id, m.content, m.summary, m.keywords, m.type, m.timestamp, e.vector, e.source
	FROM memories m
	JOIN memory_embeddings e ON e.memory_id = m.id
	WHERE m.user_id = ?
	ORDER BY m.timestamp DESC;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindInt64(1, userID)

	var results []ScoredMemory
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to query similar memories: %w", err)
		}
		if !hasRow {
			break
		}

		source := stmt.ColumnText(8)
		if source == SourceFallback && !includeFallback {
			continue
		}

		m, err := scanMemory(stmt)
		if err != nil {
			return nil, err
		}

		vectorLen := stmt.ColumnLen(7)
		vectorBytes := make([]byte, vectorLen)
		stmt.ColumnBytes(7, vectorBytes)

		stored, err := vector.BytesToFloat32Slice(vectorBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", m.ID, err)
		}

		similarity, err := vector.CosineSimilarity(queryVector, stored)
		if err != nil {
			// Dimension drift between old rows and the current constant;
			// skip rather than fail the whole search.
			continue
		}

		results = append(results, ScoredMemory{Memory: m, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListEmbedded returns all of a user's memories that have a stored vector,
// oldest first.
func (s *SQLiteStore) ListEmbedded(userID int64) ([]EmbeddedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selectSQL := `
	SELECT m.id, m.user_id, m.content, m.summary, m.keywords, m.type, m.timestamp, e.vector, e.source
	FROM memories m
	JOIN memory_embeddings e ON e.memory_id = m.id
	WHERE m.user_id = ?
	ORDER BY m.timestamp ASC;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindInt64(1, userID)

	var results []EmbeddedMemory
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to query embedded memories: %w", err)
		}
		if !hasRow {
			break
		}

		m, err := scanMemory(stmt)
		if err != nil {
			return nil, err
		}

		vectorLen := stmt.ColumnLen(7)
		vectorBytes := make([]byte, vectorLen)
		stmt.ColumnBytes(7, vectorBytes)

		vec, err := vector.BytesToFloat32Slice(vectorBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", m.ID, err)
		}

		results = append(results, EmbeddedMemory{Memory: m, Vector: vec, Source: stmt.ColumnText(8)})
	}

	return results, nil
}

// DeleteMemory removes a memory and its embedding row.
func (s *SQLiteStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sql := range []string{
		`DELETE FROM memory_embeddings WHERE memory_id = ?;`,
		`DELETE FROM memories WHERE id = ?;`,
	} {
		stmt, err := s.conn.Prepare(sql)
		if err != nil {
			return fmt.Errorf("failed to prepare delete statement: %w", err)
		}
		stmt.BindText(1, id)
		_, err = stmt.Step()
		stmt.Reset()
		if err != nil {
			return fmt.Errorf("failed to delete memory %s: %w", id, err)
		}
	}
	return nil
}

// scanMemory reads a memory from the first seven columns of a row.
func scanMemory(stmt *sqlite.Stmt) (Memory, error) {
	var keywords []string
	raw := stmt.ColumnText(4)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
			return Memory{}, fmt.Errorf("failed to decode keywords: %w", err)
		}
	}

	return Memory{
		ID:        stmt.ColumnText(0),
		UserID:    stmt.ColumnInt64(1),
		Content:   stmt.ColumnText(2),
		Summary:   stmt.ColumnText(3),
		Keywords:  keywords,
		Type:      stmt.ColumnText(5),
		Timestamp: time.Unix(stmt.ColumnInt64(6), 0),
	}, nil
}
