package config

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Store.SQLitePath != DefaultSQLitePath {
		t.Errorf("SQLitePath = %q, want %q", cfg.Store.SQLitePath, DefaultSQLitePath)
	}
	if cfg.Embedder.Dimensions != DefaultDimensions {
		t.Errorf("Dimensions = %d, want %d", cfg.Embedder.Dimensions, DefaultDimensions)
	}
	if cfg.Clustering.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %v, want %v", cfg.Clustering.Threshold, DefaultThreshold)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestLabelModelIsGenerative(t *testing.T) {
	cfg := NewConfig()

	// Topic labeling calls GenerateContent, which an embedding model
	// cannot serve, so the two model names must be configured apart.
	if cfg.Clustering.LabelModel == "" {
		t.Fatal("default config must set a label model")
	}
	if cfg.Clustering.LabelModel == cfg.Embedder.Model {
		t.Errorf("label model %q must differ from the embedding model %q",
			cfg.Clustering.LabelModel, cfg.Embedder.Model)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := NewConfig()
	cfg.Manager.CooldownSeconds = 7
	cfg.Manager.SweepIntervalMinutes = 3
	cfg.Manager.WarmupSeconds = 12

	if got := cfg.Cooldown(); got != 7*time.Second {
		t.Errorf("Cooldown() = %v, want 7s", got)
	}
	if got := cfg.SweepInterval(); got != 3*time.Minute {
		t.Errorf("SweepInterval() = %v, want 3m", got)
	}
	if got := cfg.WarmupDelay(); got != 12*time.Second {
		t.Errorf("WarmupDelay() = %v, want 12s", got)
	}
}
