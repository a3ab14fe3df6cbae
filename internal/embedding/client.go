package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServiceClient talks to the embedding microservice over HTTP.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewServiceClient creates a client for the microservice at baseURL, for
// example "http://localhost:5051".
func NewServiceClient(baseURL string, timeout time.Duration) *ServiceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Success    bool      `json:"success"`
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Error      string    `json:"error,omitempty"`
}

type similarityRequest struct {
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

type similarityResponse struct {
	Success    bool    `json:"success"`
	Similarity float64 `json:"similarity"`
	Error      string  `json:"error,omitempty"`
}

// Health reports whether the service answers its health endpoint.
func (c *ServiceClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok" || health.Status == "healthy"
}

// Embed requests a vector for text from the service.
func (c *ServiceClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Text: text}, &result); err != nil {
		return nil, err
	}

	// A malformed response is treated the same as a connection failure:
	// the caller falls through to the next backend either way.
	if !result.Success {
		if result.Error != "" {
			return nil, fmt.Errorf("%w: service error: %s", ErrBackendUnavailable, result.Error)
		}
		return nil, fmt.Errorf("%w: service reported failure", ErrBackendUnavailable)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: service returned empty embedding", ErrBackendUnavailable)
	}

	return result.Embedding, nil
}

// Similarity asks the service to score two texts directly.
func (c *ServiceClient) Similarity(ctx context.Context, text1, text2 string) (float64, error) {
	var result similarityResponse
	if err := c.post(ctx, "/api/similarity", similarityRequest{Text1: text1, Text2: text2}, &result); err != nil {
		return 0, err
	}

	if !result.Success {
		if result.Error != "" {
			return 0, fmt.Errorf("%w: service error: %s", ErrBackendUnavailable, result.Error)
		}
		return 0, fmt.Errorf("%w: service reported failure", ErrBackendUnavailable)
	}
	return result.Similarity, nil
}

func (c *ServiceClient) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: unparseable response: %v", ErrBackendUnavailable, err)
	}
	return nil
}
