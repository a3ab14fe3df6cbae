// Package manager owns the embedding backlog: it embeds memories through
// the backend chain, queues work without blocking callers, and periodically
// sweeps storage for memories that never received a vector.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mindtrail/learningmemory/internal/embedding"
	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/telemetry"
)

const (
	// DefaultCooldown is the pause between queue entries. It throttles
	// calls to rate-limited embedding providers.
	DefaultCooldown = 5 * time.Second

	// DefaultSweepInterval is how often storage is scanned for memories
	// missing an embedding row.
	DefaultSweepInterval = 10 * time.Minute

	// DefaultWarmupDelay postpones the first sweep after startup.
	DefaultWarmupDelay = 30 * time.Second

	// DefaultSweepBatchSize bounds how many memories one sweep enqueues.
	DefaultSweepBatchSize = 10
)

// Embedder is the slice of the backend chain the manager depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}

// Manager serializes embedding work through a FIFO backlog. At most one
// entry is processed at a time; a fixed cooldown separates entries.
type Manager struct {
	store      memstore.Store
	embedder   Embedder
	dimensions int

	cooldown       time.Duration
	sweepInterval  time.Duration
	warmupDelay    time.Duration
	sweepBatchSize int

	logger  *slog.Logger
	metrics *telemetry.MetricsCollector

	mu         sync.Mutex
	queue      []string
	queued     map[string]bool
	processing bool
	stopped    bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Config configures a Manager. Zero durations and sizes select defaults.
type Config struct {
	Store          memstore.Store
	Embedder       Embedder
	Dimensions     int
	Cooldown       time.Duration
	SweepInterval  time.Duration
	WarmupDelay    time.Duration
	SweepBatchSize int
	Logger         *slog.Logger
	Metrics        *telemetry.MetricsCollector
}

// New creates a Manager. Start must be called to run the sweep loop; Embed,
// Enqueue, and Sweep work without it.
func New(cfg Config) *Manager {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 3072
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = DefaultWarmupDelay
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:          cfg.Store,
		embedder:       cfg.Embedder,
		dimensions:     cfg.Dimensions,
		cooldown:       cfg.Cooldown,
		sweepInterval:  cfg.SweepInterval,
		warmupDelay:    cfg.WarmupDelay,
		sweepBatchSize: cfg.SweepBatchSize,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		queued:         make(map[string]bool),
		stop:           make(chan struct{}),
	}
}

// Embed runs text through the backend chain and re-validates the dimension
// contract before returning. It fails rather than returning a sentinel.
func (m *Manager) Embed(ctx context.Context, text string) (embedding.Result, error) {
	result, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return embedding.Result{}, err
	}
	if len(result.Vector) != m.dimensions {
		return embedding.Result{}, fmt.Errorf("%w: got %d dimensions, want %d",
			embedding.ErrDimensionMismatch, len(result.Vector), m.dimensions)
	}
	return result, nil
}

// Enqueue adds a memory id to the backlog. Already-queued ids are a no-op,
// as is any enqueue after Stop. If nothing is currently processing, draining
// starts immediately.
func (m *Manager) Enqueue(memoryID string) {
	m.mu.Lock()
	if m.stopped || m.queued[memoryID] {
		m.mu.Unlock()
		return
	}
	m.queued[memoryID] = true
	m.queue = append(m.queue, memoryID)
	depth := len(m.queue)

	kick := !m.processing
	if kick {
		m.processing = true
		// Registered under the lock so Stop's Wait can never observe a
		// zero counter between the kick decision and the Add.
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetGauge(telemetry.MetricQueueDepth, float64(depth))
	}
	m.logger.Debug("memory enqueued for embedding", "memory_id", memoryID, "depth", depth)

	if kick {
		go m.drain()
	}
}

// drain processes the backlog one entry at a time, FIFO, with a cooldown
// between entries. It exits when the queue empties or the manager stops.
func (m *Manager) drain() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.processing = false
			m.mu.Unlock()
			return
		}
		memoryID := m.queue[0]
		m.queue = m.queue[1:]
		delete(m.queued, memoryID)
		depth := len(m.queue)
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.SetGauge(telemetry.MetricQueueDepth, float64(depth))
		}

		// Failures are logged and dropped; the next sweep rediscovers the
		// memory since no embedding row was written.
		if err := m.GenerateAndSaveEmbedding(context.Background(), memoryID); err != nil {
			m.logger.Error("embedding failed, entry dropped", "memory_id", memoryID, "error", err)
			if m.metrics != nil {
				m.metrics.IncrementCounter(telemetry.MetricQueueFailed, 1)
			}
		} else if m.metrics != nil {
			m.metrics.IncrementCounter(telemetry.MetricQueueProcessed, 1)
		}

		select {
		case <-m.stop:
			m.mu.Lock()
			m.processing = false
			m.mu.Unlock()
			return
		case <-time.After(m.cooldown):
		}
	}
}

// GenerateAndSaveEmbedding embeds one memory's content and stores the
// vector. A memory that already has an embedding row succeeds immediately
// without touching any backend.
func (m *Manager) GenerateAndSaveEmbedding(ctx context.Context, memoryID string) error {
	existing, err := m.store.GetEmbeddingByMemoryID(memoryID)
	if err != nil {
		return fmt.Errorf("failed to check existing embedding: %w", err)
	}
	if existing != nil {
		m.logger.Debug("embedding already stored", "memory_id", memoryID)
		if m.metrics != nil {
			m.metrics.IncrementCounter(telemetry.MetricQueueShortCircuit, 1)
		}
		return nil
	}

	mem, err := m.store.GetMemory(memoryID)
	if err != nil {
		return fmt.Errorf("failed to load memory: %w", err)
	}
	if mem == nil {
		return fmt.Errorf("memory %s does not exist", memoryID)
	}

	result, err := m.Embed(ctx, mem.Content)
	if err != nil {
		return err
	}

	if err := m.store.SaveMemoryEmbedding(memoryID, result.Vector, string(result.Source)); err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}

	m.logger.Info("embedding stored", "memory_id", memoryID, "source", result.Source)
	return nil
}

// Sweep finds memories without an embedding row and enqueues them, bounded
// to one batch. It never returns an error: a failed scan logs and waits for
// the next interval.
func (m *Manager) Sweep(ctx context.Context) {
	if m.metrics != nil {
		m.metrics.IncrementCounter(telemetry.MetricSweepRuns, 1)
	}

	missing, err := m.store.FindMemoriesMissingEmbedding(m.sweepBatchSize)
	if err != nil {
		m.logger.Error("sweep failed", "error", err)
		return
	}
	if len(missing) == 0 {
		m.logger.Debug("sweep found nothing to embed")
		return
	}

	for _, mem := range missing {
		m.Enqueue(mem.ID)
	}
	if m.metrics != nil {
		m.metrics.IncrementCounter(telemetry.MetricSweepEnqueued, int64(len(missing)))
	}
	m.logger.Info("sweep enqueued memories", "count", len(missing))
}

// Start runs the sweep loop: one sweep after the warm-up delay, then one
// per interval until Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.warmupDelay):
		}
		m.Sweep(ctx)

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for the current queue entry to finish.
// Remaining queue entries are abandoned; the next sweep rediscovers them.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.stop)
	})
	m.wg.Wait()
}

// QueueDepth reports the current backlog length.
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
