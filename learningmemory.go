// Package learningmemory assembles the embedding and clustering pipeline
// behind one service facade: memories go in, vectors are generated through a
// chain of fallback backends, and batches are clustered into labeled topics.
package learningmemory

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/mindtrail/learningmemory/internal/cluster"
	"github.com/mindtrail/learningmemory/internal/config"
	"github.com/mindtrail/learningmemory/internal/embedding"
	"github.com/mindtrail/learningmemory/internal/errortypes"
	"github.com/mindtrail/learningmemory/internal/keywords"
	"github.com/mindtrail/learningmemory/internal/learningpath"
	"github.com/mindtrail/learningmemory/internal/manager"
	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/procbridge"
	"github.com/mindtrail/learningmemory/internal/server"
	"github.com/mindtrail/learningmemory/internal/summarizer"
	"github.com/mindtrail/learningmemory/internal/telemetry"
	"github.com/mindtrail/learningmemory/internal/util"
	"github.com/mindtrail/learningmemory/internal/vector"
)

// Config represents the configuration for the learning memory service.
type Config = config.Config

// Components bundles the constructed pipeline pieces for callers that need
// direct access without a full server.
type Components struct {
	Store      memstore.Store
	Chain      *embedding.Chain
	Manager    *manager.Manager
	Analyzer   *cluster.Analyzer
	Bridge     *cluster.Bridge
	Summarizer summarizer.Summarizer
	Client     *embedding.ServiceClient
	Metrics    *telemetry.MetricsCollector
}

// Service exposes the memory pipeline's operations. It implements the tool
// server's MemoryService contract.
type Service struct {
	config         *config.Config
	components     *Components
	bridgeMinBatch int
	logger         *slog.Logger
}

// Server represents the learning memory MCP service.
type Server struct {
	service    *Service
	toolServer server.MemoryToolServer
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.
}

// NewServer creates a new learning memory Server with the given options.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	if opts.Config != nil {
		cfg = opts.Config
		logger.Info("Using provided Config object for server initialization")
	} else if opts.ConfigPath != "" {
		logger.Info("Loading configuration for server initialization", "path", opts.ConfigPath)
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath)
		if err != nil {
			logger.Error("Failed to load configuration from path", "path", opts.ConfigPath, "error", err)
			return nil, errortypes.ConfigError(err, "Failed to load configuration from path: "+opts.ConfigPath)
		}
	} else {
		logger.Warn("No Config object or ConfigPath provided, using default configuration")
		cfg = DefaultConfig()
	}

	service, err := NewService(cfg, logger)
	if err != nil {
		logger.Error("Failed to create service during server initialization", "error", err)
		return nil, err
	}

	logger.Info("Initializing memory tool server component")
	mcpServer := server.NewMemoryToolServer(service)
	if err := mcpServer.Initialize(); err != nil {
		logger.Error("Failed to initialize MCP memory tool server component", "error", err)
		return nil, errortypes.ConfigError(err, "Failed to initialize MCP memory tool server component")
	}

	logger.Info("Learning memory server successfully initialized")
	return &Server{
		service:    service,
		toolServer: mcpServer,
		logger:     logger,
	}, nil
}

// DefaultConfig returns the default configuration for the service.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// NewService constructs the pipeline from configuration.
func NewService(cfg *Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	components, err := CreateComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:         cfg,
		components:     components,
		bridgeMinBatch: cfg.Clustering.BridgeMinBatch,
		logger:         logger,
	}, nil
}

// CreateComponents creates and initializes the pipeline components without
// creating a server instance.
func CreateComponents(cfg *Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	metrics := telemetry.NewMetricsCollector()

	logger.Info("Initializing SQLite memory store", "path", cfg.Store.SQLitePath)
	store := memstore.NewSQLiteStore()
	if err := store.Initialize(cfg.Store.SQLitePath); err != nil {
		logger.Error("Failed to initialize SQLite memory store", "path", cfg.Store.SQLitePath, "error", err)
		return nil, errortypes.DatabaseError(err, "Failed to initialize SQLite memory store")
	}

	// The SDK client is shared by the embedding backend and the AI topic
	// labeler. Without an API key both are simply left out of their chains.
	var sdkClient *genai.Client
	if cfg.Embedder.ApiKey != "" {
		var err error
		sdkClient, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  cfg.Embedder.ApiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			logger.Error("Failed to create SDK client", "error", err)
			return nil, errortypes.ConfigError(err, "Failed to create SDK client")
		}
	}

	serviceClient := embedding.NewServiceClient(cfg.Embedder.ServiceURL, 30*time.Second)

	var backends []embedding.Backend
	var starter embedding.Starter
	if cfg.Embedder.StartScript != "" {
		starter = embedding.ScriptStarter(cfg.Embedder.Interpreter, cfg.Embedder.StartScript, cfg.Embedder.ServicePort)
	}
	backends = append(backends, embedding.NewServiceBackend(embedding.ServiceBackendConfig{
		Client:  serviceClient,
		Starter: starter,
		Logger:  logger,
	}))
	if cfg.Embedder.EmbedScript != "" {
		bridge := procbridge.New(cfg.Embedder.Interpreter, cfg.Embedder.EmbedScript,
			procbridge.WithLogger(logger))
		backends = append(backends, embedding.NewScriptBackend(bridge))
	}
	if sdkClient != nil {
		backends = append(backends, embedding.NewSDKBackendWithClient(sdkClient, cfg.Embedder.Model))
	}

	logger.Info("Initializing embedding backend chain",
		"backends", len(backends), "dimensions", cfg.Embedder.Dimensions)
	chain := embedding.NewChain(embedding.ChainConfig{
		Backends:   backends,
		Dimensions: cfg.Embedder.Dimensions,
		Logger:     logger,
		Metrics:    metrics,
	})

	mgr := manager.New(manager.Config{
		Store:          store,
		Embedder:       chain,
		Dimensions:     cfg.Embedder.Dimensions,
		Cooldown:       cfg.Cooldown(),
		SweepInterval:  cfg.SweepInterval(),
		WarmupDelay:    cfg.WarmupDelay(),
		SweepBatchSize: cfg.Manager.SweepBatchSize,
		Logger:         logger,
		Metrics:        metrics,
	})

	var aiStrategy *cluster.AIStrategy
	if sdkClient != nil {
		// Labeling needs a text-generation model; the embedding model
		// cannot serve GenerateContent.
		labelModel := cfg.Clustering.LabelModel
		if labelModel == "" {
			labelModel = config.DefaultLabelModel
		}
		aiStrategy = cluster.NewAIStrategy(sdkClient, labelModel)
	}
	labeler := cluster.NewLabeler(cluster.LabelerConfig{
		Model:   aiStrategy,
		Logger:  logger,
		Metrics: metrics,
	})
	analyzer := cluster.NewAnalyzer(cluster.AnalyzerConfig{
		Threshold:      cfg.Clustering.Threshold,
		MinClusterSize: cfg.Clustering.MinClusterSize,
		Labeler:        labeler,
		Logger:         logger,
		Metrics:        metrics,
	})

	var clusterBridge *cluster.Bridge
	if cfg.Clustering.Script != "" {
		clusterBridge = cluster.NewBridge(cluster.BridgeConfig{
			Bridge: procbridge.New(cfg.Clustering.Interpreter, cfg.Clustering.Script,
				procbridge.WithLogger(logger)),
			Analyzer: analyzer,
			Logger:   logger,
			Metrics:  metrics,
		})
	}

	logger.Info("Components successfully initialized")
	return &Components{
		Store:      store,
		Chain:      chain,
		Manager:    mgr,
		Analyzer:   analyzer,
		Bridge:     clusterBridge,
		Summarizer: summarizer.NewBasicSummarizer(summarizer.DefaultMaxSummaryLength),
		Client:     serviceClient,
		Metrics:    metrics,
	}, nil
}

// Start starts the sweep loop and the MCP transport. It blocks until the
// transport exits.
func (s *Server) Start() error {
	s.logger.Info("Starting learning memory service")
	s.service.Start(context.Background())
	return s.toolServer.Start()
}

// Stop stops the service.
func (s *Server) Stop() error {
	s.logger.Info("Stopping learning memory service")
	if err := s.toolServer.Stop(); err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}
	return s.service.Stop()
}

// Service returns the underlying service facade.
func (s *Server) Service() *Service {
	return s.service
}

// Start begins the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	s.components.Manager.Start(ctx)
}

// Stop halts background work and closes the store.
func (s *Service) Stop() error {
	s.components.Manager.Stop()

	s.logger.Info("Closing store")
	if err := s.components.Store.Close(); err != nil {
		s.logger.Error("Failed to close store", "error", err)
		return err
	}
	return nil
}

// Components returns the constructed pipeline pieces.
func (s *Service) Components() *Components {
	return s.components
}

// SaveMemory stores a conversation fragment with derived summary and
// keywords, then queues it for embedding. Embedding failures never block
// ingestion: the text is saved either way and the sweep retries later.
func (s *Service) SaveMemory(ctx context.Context, userID int64, content, memType string) (string, error) {
	if memType == "" {
		memType = "chat"
	}

	summary, err := s.components.Summarizer.Summarize(content)
	if err != nil {
		s.logger.Warn("Failed to summarize memory, storing without summary", "error", err)
		summary = ""
	}

	timestamp := time.Now()
	id := util.GenerateMemoryID(userID, content, timestamp)

	mem := memstore.Memory{
		ID:        id,
		UserID:    userID,
		Content:   content,
		Summary:   summary,
		Keywords:  keywords.Extract(content, keywords.DefaultMaxKeywords),
		Type:      memType,
		Timestamp: timestamp,
	}
	if err := s.components.Store.SaveMemory(mem); err != nil {
		s.logger.Error("Failed to store memory", "id", id, "error", err)
		return "", errortypes.DatabaseError(err, "failed to store memory")
	}

	s.components.Manager.Enqueue(id)
	s.logger.Info("Successfully saved memory", "id", id, "user_id", userID)
	return id, nil
}

// RetrieveSimilar embeds the query and ranks the user's memories by cosine
// similarity. Fallback-sourced vectors are excluded from the search.
func (s *Service) RetrieveSimilar(ctx context.Context, userID int64, query string, limit int) ([]memstore.ScoredMemory, error) {
	result, err := s.components.Manager.Embed(ctx, query)
	if err != nil {
		s.logger.Error("Failed to embed query", "error", err)
		return nil, err
	}

	results, err := s.components.Store.FindSimilarMemories(userID, result.Vector, limit, false)
	if err != nil {
		s.logger.Error("Failed to search memories", "user_id", userID, "error", err)
		return nil, errortypes.DatabaseError(err, "failed to search memories")
	}

	s.logger.Info("Retrieved similar memories", "user_id", userID, "count", len(results))
	return results, nil
}

// CompareTexts scores the semantic similarity of two texts, preferring the
// microservice's similarity endpoint and computing locally when it is down.
func (s *Service) CompareTexts(ctx context.Context, text1, text2 string) (float64, error) {
	if s.components.Client != nil && s.components.Client.Health(ctx) {
		if score, err := s.components.Client.Similarity(ctx, text1, text2); err == nil {
			return score, nil
		}
		s.logger.Warn("Similarity endpoint failed, computing locally")
	}

	first, err := s.components.Manager.Embed(ctx, text1)
	if err != nil {
		return 0, err
	}
	second, err := s.components.Manager.Embed(ctx, text2)
	if err != nil {
		return 0, err
	}
	return vector.CosineSimilarity(first.Vector, second.Vector)
}

// ClusterMemories groups a user's embedded memories into labeled topics.
// Large batches are delegated to the external clustering routine when one
// is configured.
func (s *Service) ClusterMemories(ctx context.Context, userID int64) (cluster.Result, error) {
	batch, err := s.components.Store.ListEmbedded(userID)
	if err != nil {
		s.logger.Error("Failed to load embedded memories", "user_id", userID, "error", err)
		return cluster.Result{}, errortypes.DatabaseError(err, "failed to load embedded memories")
	}

	if s.components.Bridge != nil && len(batch) >= s.bridgeMinBatch {
		return s.components.Bridge.Cluster(ctx, batch), nil
	}
	return s.components.Analyzer.Cluster(ctx, batch), nil
}

// AnalyzeLearningPath evaluates the user's learning trajectory from their
// stored memories.
func (s *Service) AnalyzeLearningPath(ctx context.Context, userID int64) (learningpath.Analysis, error) {
	batch, err := s.components.Store.ListEmbedded(userID)
	if err != nil {
		s.logger.Error("Failed to load memories for analysis", "user_id", userID, "error", err)
		return learningpath.DefaultAnalysis(), nil
	}

	memories := make([]memstore.Memory, len(batch))
	for i, em := range batch {
		memories[i] = em.Memory
	}
	return learningpath.Analyze(memories), nil
}

// DeleteMemory removes a memory and its embedding row.
func (s *Service) DeleteMemory(ctx context.Context, id string) error {
	if err := s.components.Store.DeleteMemory(id); err != nil {
		s.logger.Error("Failed to delete memory", "id", id, "error", err)
		return errortypes.DatabaseError(err, "failed to delete memory")
	}
	s.logger.Info("Successfully deleted memory", "id", id)
	return nil
}
