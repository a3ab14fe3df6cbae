package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultSDKModel is the embedding model used by the in-process SDK
	// backend when none is configured.
	DefaultSDKModel = "gemini-embedding-001"
)

// SDKBackend embeds text through the provider SDK in-process. It is the
// lowest-latency path when the API is reachable, used both as a fast path
// and as the last real backend before the deterministic fallback.
type SDKBackend struct {
	client    *genai.Client
	modelName string
}

// NewSDKBackend creates the SDK-backed embedding strategy from an API key.
func NewSDKBackend(ctx context.Context, apiKey, modelName string) (*SDKBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key for SDK backend", ErrBackendUnavailable)
	}
	if modelName == "" {
		modelName = DefaultSDKModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create SDK client: %v", ErrBackendUnavailable, err)
	}

	return &SDKBackend{client: client, modelName: modelName}, nil
}

// NewSDKBackendWithClient wraps an existing SDK client; used by tests and
// embedders that manage their own client lifecycle.
func NewSDKBackendWithClient(client *genai.Client, modelName string) *SDKBackend {
	if modelName == "" {
		modelName = DefaultSDKModel
	}
	return &SDKBackend{client: client, modelName: modelName}
}

// Name identifies the backend in logs and metrics.
func (b *SDKBackend) Name() string { return "sdk" }

// TryEmbed calls the embedding endpoint directly.
func (b *SDKBackend) TryEmbed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: text},
			},
		},
	}

	result, err := b.client.Models.EmbedContent(ctx, b.modelName, contents, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrBackendUnavailable)
	}
	values := result.Embeddings[0].Values
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", ErrBackendUnavailable)
	}

	return values, nil
}
