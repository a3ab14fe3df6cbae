package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mindtrail/learningmemory/internal/embedding"
	"github.com/mindtrail/learningmemory/internal/memstore"
)

// fakeStore is an in-memory Store for manager tests.
type fakeStore struct {
	mu         sync.Mutex
	memories   map[string]memstore.Memory
	embeddings map[string]memstore.Embedding
	saveOrder  []string
	missing    []memstore.Memory
	findErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:   make(map[string]memstore.Memory),
		embeddings: make(map[string]memstore.Embedding),
	}
}

func (s *fakeStore) Initialize(string) error { return nil }
func (s *fakeStore) Close() error            { return nil }

func (s *fakeStore) SaveMemory(m memstore.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = m
	return nil
}

func (s *fakeStore) GetMemory(id string) (*memstore.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *fakeStore) GetEmbeddingByMemoryID(id string) (*memstore.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.embeddings[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveMemoryEmbedding(id string, vector []float32, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.embeddings[id]; exists {
		return nil
	}
	s.embeddings[id] = memstore.Embedding{MemoryID: id, Vector: vector, Source: source}
	s.saveOrder = append(s.saveOrder, id)
	return nil
}

func (s *fakeStore) FindMemoriesMissingEmbedding(limit int) ([]memstore.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if len(s.missing) > limit {
		return s.missing[:limit], nil
	}
	return s.missing, nil
}

func (s *fakeStore) FindSimilarMemories(int64, []float32, int, bool) ([]memstore.ScoredMemory, error) {
	return nil, nil
}

func (s *fakeStore) ListEmbedded(int64) ([]memstore.EmbeddedMemory, error) { return nil, nil }
func (s *fakeStore) DeleteMemory(string) error                            { return nil }

func (s *fakeStore) savedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saveOrder))
	copy(out, s.saveOrder)
	return out
}

// fakeEmbedder returns a fixed-size vector, optionally gated on a channel
// so tests can hold the queue in a known state.
type fakeEmbedder struct {
	mu    sync.Mutex
	dims  int
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embedding.Result, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return embedding.Result{}, f.err
	}
	return embedding.Result{Vector: make([]float32, f.dims), Source: embedding.SourceReal}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestManager(store memstore.Store, embedder Embedder) *Manager {
	return New(Config{
		Store:      store,
		Embedder:   embedder,
		Dimensions: 4,
		Cooldown:   time.Millisecond,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestEmbedRevalidatesDimensions(t *testing.T) {
	mgr := newTestManager(newFakeStore(), &fakeEmbedder{dims: 7})

	_, err := mgr.Embed(context.Background(), "text")
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for wrong vector length, got %v", err)
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.SaveMemory(memstore.Memory{ID: "a", Content: "first"})
	store.SaveMemory(memstore.Memory{ID: "b", Content: "second"})

	embedder := &fakeEmbedder{dims: 4, gate: make(chan struct{})}
	mgr := newTestManager(store, embedder)
	defer mgr.Stop()

	// "a" starts processing and blocks on the gate; "b" stays queued.
	mgr.Enqueue("a")
	waitFor(t, time.Second, func() bool { return mgr.QueueDepth() == 0 })
	mgr.Enqueue("b")
	mgr.Enqueue("b")
	mgr.Enqueue("b")

	if depth := mgr.QueueDepth(); depth != 1 {
		t.Errorf("queue depth = %d, want 1 (duplicate enqueues ignored)", depth)
	}

	close(embedder.gate)
	waitFor(t, time.Second, func() bool { return len(store.savedIDs()) == 2 })
}

func TestDrainProcessesInFIFOOrder(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"a", "b", "c"} {
		store.SaveMemory(memstore.Memory{ID: id, Content: "content " + id})
	}

	embedder := &fakeEmbedder{dims: 4, gate: make(chan struct{})}
	mgr := newTestManager(store, embedder)
	defer mgr.Stop()

	mgr.Enqueue("a")
	mgr.Enqueue("b")
	mgr.Enqueue("c")
	close(embedder.gate)

	waitFor(t, time.Second, func() bool { return len(store.savedIDs()) == 3 })

	got := store.savedIDs()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("processing order = %v, want %v", got, want)
		}
	}
}

func TestGenerateAndSaveShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.SaveMemory(memstore.Memory{ID: "a", Content: "already embedded"})
	store.embeddings["a"] = memstore.Embedding{MemoryID: "a", Vector: []float32{1, 2, 3, 4}}

	embedder := &fakeEmbedder{dims: 4}
	mgr := newTestManager(store, embedder)

	if err := mgr.GenerateAndSaveEmbedding(context.Background(), "a"); err != nil {
		t.Fatalf("expected success for already-embedded memory, got %v", err)
	}
	if embedder.callCount() != 0 {
		t.Errorf("no backend call expected for already-embedded memory, got %d", embedder.callCount())
	}
}

func TestGenerateAndSaveUnknownMemory(t *testing.T) {
	mgr := newTestManager(newFakeStore(), &fakeEmbedder{dims: 4})
	if err := mgr.GenerateAndSaveEmbedding(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown memory id")
	}
}

func TestFailedEntryIsDroppedAndQueueContinues(t *testing.T) {
	store := newFakeStore()
	store.SaveMemory(memstore.Memory{ID: "bad", Content: "will fail"})
	store.SaveMemory(memstore.Memory{ID: "good", Content: "will succeed"})

	embedder := &failOnceEmbedder{dims: 4}
	mgr := newTestManager(store, embedder)
	defer mgr.Stop()

	mgr.Enqueue("bad")
	mgr.Enqueue("good")

	waitFor(t, time.Second, func() bool { return len(store.savedIDs()) == 1 })
	if got := store.savedIDs()[0]; got != "good" {
		t.Errorf("saved %q, want the failing entry dropped and %q saved", got, "good")
	}
}

// failOnceEmbedder fails its first call and succeeds afterwards.
type failOnceEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int
}

func (f *failOnceEmbedder) Embed(ctx context.Context, text string) (embedding.Result, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return embedding.Result{}, errors.New("backend exploded")
	}
	return embedding.Result{Vector: make([]float32, f.dims), Source: embedding.SourceReal}, nil
}

func TestSweepEnqueuesMissingMemories(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dims: 4, gate: make(chan struct{})}
	for _, id := range []string{"m1", "m2", "m3"} {
		store.SaveMemory(memstore.Memory{ID: id, Content: "content"})
		store.missing = append(store.missing, memstore.Memory{ID: id})
	}

	mgr := newTestManager(store, embedder)
	defer mgr.Stop()

	mgr.Sweep(context.Background())
	close(embedder.gate)

	waitFor(t, time.Second, func() bool { return len(store.savedIDs()) == 3 })
}

func TestSweepRespectsBatchLimit(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 25; i++ {
		store.missing = append(store.missing, memstore.Memory{ID: string(rune('a' + i))})
	}

	embedder := &fakeEmbedder{dims: 4, gate: make(chan struct{})}
	mgr := New(Config{
		Store:          store,
		Embedder:       embedder,
		Dimensions:     4,
		Cooldown:       time.Millisecond,
		SweepBatchSize: 10,
	})
	defer mgr.Stop()
	defer close(embedder.gate)

	mgr.Sweep(context.Background())

	// One entry is immediately pulled for processing; the rest wait.
	if depth := mgr.QueueDepth(); depth > 10 {
		t.Errorf("queue depth = %d, want at most the sweep batch size", depth)
	}
}

func TestSweepSwallowsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("database locked")

	mgr := newTestManager(store, &fakeEmbedder{dims: 4})
	mgr.Sweep(context.Background()) // must not panic or propagate
}

func TestEnqueueAfterStopIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.SaveMemory(memstore.Memory{ID: "late", Content: "arrives after shutdown"})

	embedder := &fakeEmbedder{dims: 4}
	mgr := newTestManager(store, embedder)
	mgr.Stop()

	// A stopped manager must not queue work or spawn a drain goroutine,
	// so Stop's wait can never race a late kick.
	mgr.Enqueue("late")

	if depth := mgr.QueueDepth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 after Stop", depth)
	}
	time.Sleep(10 * time.Millisecond)
	if embedder.callCount() != 0 {
		t.Errorf("no embedding expected after Stop, got %d calls", embedder.callCount())
	}
}

func TestConcurrentEnqueueAndStop(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		store.SaveMemory(memstore.Memory{ID: id, Content: "content"})
	}

	embedder := &fakeEmbedder{dims: 4}
	mgr := newTestManager(store, embedder)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			mgr.Enqueue(string(rune('a' + i)))
		}
	}()
	mgr.Stop()
	wg.Wait()

	// Whatever made it in before Stop drains or is abandoned; the point
	// is that Stop returns without a counter race or panic.
	mgr.Stop()
}

func TestStartRunsWarmupSweep(t *testing.T) {
	store := newFakeStore()
	store.SaveMemory(memstore.Memory{ID: "m1", Content: "content"})
	store.missing = []memstore.Memory{{ID: "m1"}}

	mgr := New(Config{
		Store:         store,
		Embedder:      &fakeEmbedder{dims: 4},
		Dimensions:    4,
		Cooldown:      time.Millisecond,
		WarmupDelay:   5 * time.Millisecond,
		SweepInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	waitFor(t, time.Second, func() bool { return len(store.savedIDs()) == 1 })
}
