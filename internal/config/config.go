// Package config loads the service configuration from file and environment
// through configurator, with sensible defaults for every field.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localrivet/configurator"
)

// Config is the full service configuration.
type Config struct {
	// Store contains storage-related configuration.
	Store struct {
		// SQLitePath is the path to the SQLite database file.
		SQLitePath string `json:"sqlite_path" env:"SQLITE_PATH" validate:"required"`
	} `json:"store"`

	// Embedder configures the embedding backend chain.
	Embedder struct {
		// Dimensions is the fixed vector dimensionality every backend's
		// output is normalized to.
		Dimensions int `json:"dimensions" env:"EMBEDDER_DIMENSIONS" validate:"min:1"`

		// ServiceURL is the base URL of the embedding microservice.
		ServiceURL string `json:"service_url" env:"EMBEDDER_SERVICE_URL"`

		// ServicePort is passed to the start script when the service
		// needs to be launched.
		ServicePort int `json:"service_port" env:"EMBEDDER_SERVICE_PORT"`

		// StartScript launches the microservice when it is down. Empty
		// disables automatic startup.
		StartScript string `json:"start_script" env:"EMBEDDER_START_SCRIPT"`

		// EmbedScript is the direct embedding script run through the
		// subprocess bridge when the service is unreachable.
		EmbedScript string `json:"embed_script" env:"EMBEDDER_EMBED_SCRIPT"`

		// Interpreter runs the embedding scripts.
		Interpreter string `json:"interpreter" env:"EMBEDDER_INTERPRETER"`

		// ApiKey authenticates the in-process SDK backend.
		ApiKey string `json:"api_key" env:"EMBEDDER_API_KEY"`

		// Model is the SDK embedding model name.
		Model string `json:"model" env:"EMBEDDER_MODEL"`
	} `json:"embedder"`

	// Manager configures the backlog queue and sweep loop.
	Manager struct {
		// CooldownSeconds is the pause between processed queue entries.
		CooldownSeconds int `json:"cooldown_seconds" env:"MANAGER_COOLDOWN_SECONDS"`

		// SweepIntervalMinutes is how often storage is scanned for
		// memories missing an embedding.
		SweepIntervalMinutes int `json:"sweep_interval_minutes" env:"MANAGER_SWEEP_INTERVAL_MINUTES"`

		// WarmupSeconds delays the first sweep after startup.
		WarmupSeconds int `json:"warmup_seconds" env:"MANAGER_WARMUP_SECONDS"`

		// SweepBatchSize bounds how many memories one sweep enqueues.
		SweepBatchSize int `json:"sweep_batch_size" env:"MANAGER_SWEEP_BATCH_SIZE"`
	} `json:"manager"`

	// Clustering configures the analyzer and the external routine.
	Clustering struct {
		// Threshold is the minimum cosine similarity for two memories to
		// share a cluster.
		Threshold float64 `json:"threshold" env:"CLUSTERING_THRESHOLD"`

		// MinClusterSize is the smallest group reported as a cluster.
		MinClusterSize int `json:"min_cluster_size" env:"CLUSTERING_MIN_CLUSTER_SIZE"`

		// Script is the external clustering routine, run through the
		// subprocess bridge. Empty keeps clustering in-process.
		Script string `json:"script" env:"CLUSTERING_SCRIPT"`

		// Interpreter runs the clustering script.
		Interpreter string `json:"interpreter" env:"CLUSTERING_INTERPRETER"`

		// BridgeMinBatch is the batch size above which clustering is
		// delegated to the external routine.
		BridgeMinBatch int `json:"bridge_min_batch" env:"CLUSTERING_BRIDGE_MIN_BATCH"`

		// LabelModel is the generative model used for AI topic labeling.
		// This is a text-generation model, distinct from the embedding
		// model in Embedder.Model.
		LabelModel string `json:"label_model" env:"CLUSTERING_LABEL_MODEL"`
	} `json:"clustering"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// Internal state (not saved to config file)
	configPath     string       `json:"-"`
	mutex          sync.RWMutex `json:"-"`
	lastModifiedAt time.Time    `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename       = ".learningmemoryconfig"
	DefaultSQLitePath           = ".learningmemory.db"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultDimensions           = 3072
	DefaultServiceURL           = "http://localhost:5051"
	DefaultServicePort          = 5051
	DefaultInterpreter          = "python3"
	DefaultModel                = "gemini-embedding-001"
	DefaultLabelModel           = "gemini-2.5-flash"
	DefaultCooldownSeconds      = 5
	DefaultSweepIntervalMinutes = 10
	DefaultWarmupSeconds        = 30
	DefaultSweepBatchSize       = 10
	DefaultThreshold            = 0.7
	DefaultMinClusterSize       = 3
	DefaultBridgeMinBatch       = 200
)

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Store.SQLitePath = DefaultSQLitePath
	cfg.Embedder.Dimensions = DefaultDimensions
	cfg.Embedder.ServiceURL = DefaultServiceURL
	cfg.Embedder.ServicePort = DefaultServicePort
	cfg.Embedder.Interpreter = DefaultInterpreter
	cfg.Embedder.Model = DefaultModel
	cfg.Manager.CooldownSeconds = DefaultCooldownSeconds
	cfg.Manager.SweepIntervalMinutes = DefaultSweepIntervalMinutes
	cfg.Manager.WarmupSeconds = DefaultWarmupSeconds
	cfg.Manager.SweepBatchSize = DefaultSweepBatchSize
	cfg.Clustering.Threshold = DefaultThreshold
	cfg.Clustering.MinClusterSize = DefaultMinClusterSize
	cfg.Clustering.Interpreter = DefaultInterpreter
	cfg.Clustering.BridgeMinBatch = DefaultBridgeMinBatch
	cfg.Clustering.LabelModel = DefaultLabelModel
	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat
	return cfg
}

// LoadConfig loads the configuration from the default path.
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename)
}

// LoadConfigWithPath loads the configuration from a specific path, layering
// file values and LEARNINGMEMORY_-prefixed environment variables over the
// defaults.
func LoadConfigWithPath(configPath string) (*Config, error) {
	stdLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := NewConfig()

	if configPath == DefaultConfigFilename {
		foundPath, err := configurator.FindConfigFile(configPath)
		if err == nil {
			configPath = foundPath
			stdLogger.Debug("Found config file at " + foundPath)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		stdLogger.Info("Config file not found, using default configuration", "path", configPath)
		cfg.configPath = configPath
		cfg.lastModifiedAt = time.Now()
		return cfg, nil
	}

	stdLogger.Info("Loading configuration", "path", configPath)

	loader := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider()).
		WithProvider(configurator.NewFileProvider(configPath)).
		WithProvider(configurator.NewEnvProvider("LEARNINGMEMORY")).
		WithValidator(configurator.NewDefaultValidator())

	ctx := context.Background()
	if err := loader.Load(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.configPath = configPath
	cfg.lastModifiedAt = time.Now()
	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path
	c.lastModifiedAt = time.Now()
	return nil
}

// Save saves the configuration to the last used file path.
func (c *Config) Save() error {
	if c.configPath == "" {
		c.configPath = DefaultConfigFilename
	}
	return c.SaveToFile(c.configPath)
}

// GetConfigPath returns the path of the currently loaded configuration file.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// Cooldown returns the queue cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Manager.CooldownSeconds) * time.Second
}

// SweepInterval returns the sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Manager.SweepIntervalMinutes) * time.Minute
}

// WarmupDelay returns the startup sweep delay as a duration.
func (c *Config) WarmupDelay() time.Duration {
	return time.Duration(c.Manager.WarmupSeconds) * time.Second
}
