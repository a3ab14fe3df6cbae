package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/mindtrail/learningmemory/internal/procbridge"
)

// ScriptBackend embeds text by invoking the embedding script directly as a
// subprocess, used when the microservice cannot be reached or started.
type ScriptBackend struct {
	bridge *procbridge.Bridge
}

// NewScriptBackend creates the subprocess-backed embedding strategy.
func NewScriptBackend(bridge *procbridge.Bridge) *ScriptBackend {
	return &ScriptBackend{bridge: bridge}
}

// Name identifies the backend in logs and metrics.
func (b *ScriptBackend) Name() string { return "script" }

type scriptEmbedInput struct {
	Text string `json:"text"`
}

type scriptEmbedOutput struct {
	Success    bool      `json:"success"`
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Error      string    `json:"error,omitempty"`
}

// TryEmbed hands the text to the script over the process bridge.
func (b *ScriptBackend) TryEmbed(ctx context.Context, text string) ([]float32, error) {
	var out scriptEmbedOutput
	err := b.bridge.Run(ctx, scriptEmbedInput{Text: text}, &out)
	if err != nil {
		if errors.Is(err, procbridge.ErrProtocolViolation) {
			// Protocol violations are bug signals, not transient faults,
			// but the chain still falls through to the next backend.
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if !out.Success {
		if out.Error != "" {
			return nil, fmt.Errorf("%w: script error: %s", ErrBackendUnavailable, out.Error)
		}
		return nil, fmt.Errorf("%w: script reported failure", ErrBackendUnavailable)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: script returned empty embedding", ErrBackendUnavailable)
	}

	return out.Embedding, nil
}
