package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestService(t *testing.T, handler http.Handler) *ServiceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewServiceClient(server.URL, 5*time.Second)
}

func TestServiceClientHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		healthy bool
	}{
		{"reports ok", http.StatusOK, `{"status":"ok"}`, true},
		{"reports healthy", http.StatusOK, `{"status":"healthy"}`, true},
		{"reports degraded", http.StatusOK, `{"status":"degraded"}`, false},
		{"server error", http.StatusInternalServerError, `{}`, false},
		{"garbage body", http.StatusOK, `not json`, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))

			if got := client.Health(context.Background()); got != test.healthy {
				t.Errorf("Health() = %v, want %v", got, test.healthy)
			}
		})
	}
}

func TestServiceClientHealthUnreachable(t *testing.T) {
	client := NewServiceClient("http://127.0.0.1:1", 500*time.Millisecond)
	if client.Health(context.Background()) {
		t.Error("Health() should be false for an unreachable service")
	}
}

func TestServiceClientEmbed(t *testing.T) {
	client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Text != "hello world" {
			t.Errorf("unexpected text %q", req.Text)
		}
		json.NewEncoder(w).Encode(embedResponse{
			Success:    true,
			Embedding:  []float32{0.1, 0.2, 0.3},
			Dimensions: 3,
		})
	}))

	vec, err := client.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestServiceClientEmbedFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"service reports failure", `{"success":false,"error":"model unavailable"}`},
		{"empty embedding", `{"success":true,"embedding":[]}`},
		{"unparseable body", `<html>boom</html>`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(test.body))
			}))

			_, err := client.Embed(context.Background(), "text")
			if !errors.Is(err, ErrBackendUnavailable) {
				t.Errorf("expected ErrBackendUnavailable, got %v", err)
			}
		})
	}
}

func TestServiceClientSimilarity(t *testing.T) {
	client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/similarity" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req similarityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(similarityResponse{Success: true, Similarity: 0.87})
	}))

	score, err := client.Similarity(context.Background(), "first", "second")
	if err != nil {
		t.Fatalf("Similarity failed: %v", err)
	}
	if score != 0.87 {
		t.Errorf("Similarity() = %v, want 0.87", score)
	}
}

func TestServiceBackendStartsUnhealthyService(t *testing.T) {
	// Service answers unhealthy until "started", then serves embeddings.
	var started atomic.Bool
	client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if started.Load() {
				w.Write([]byte(`{"status":"ok"}`))
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		case "/api/embed":
			json.NewEncoder(w).Encode(embedResponse{Success: true, Embedding: []float32{1, 2}})
		}
	}))

	var startCalls int
	backend := NewServiceBackend(ServiceBackendConfig{
		Client: client,
		Starter: func(ctx context.Context) error {
			startCalls++
			started.Store(true)
			return nil
		},
		PollAttempts: 3,
		PollDelay:    10 * time.Millisecond,
	})

	vec, err := backend.TryEmbed(context.Background(), "text")
	if err != nil {
		t.Fatalf("TryEmbed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("unexpected vector %v", vec)
	}
	if startCalls != 1 {
		t.Errorf("expected one start call, got %d", startCalls)
	}
}

func TestServiceBackendGivesUpWithoutStarter(t *testing.T) {
	client := NewServiceClient("http://127.0.0.1:1", 500*time.Millisecond)
	backend := NewServiceBackend(ServiceBackendConfig{
		Client:       client,
		PollAttempts: 2,
		PollDelay:    time.Millisecond,
	})

	_, err := backend.TryEmbed(context.Background(), "text")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestServiceBackendGivesUpWhenHealthNeverArrives(t *testing.T) {
	client := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	backend := NewServiceBackend(ServiceBackendConfig{
		Client:       client,
		Starter:      func(ctx context.Context) error { return nil },
		PollAttempts: 2,
		PollDelay:    time.Millisecond,
	})

	_, err := backend.TryEmbed(context.Background(), "text")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}
