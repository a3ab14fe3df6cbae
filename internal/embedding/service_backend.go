package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// DefaultHealthPollAttempts is how many times a freshly started
	// service is polled before the backend gives up on it.
	DefaultHealthPollAttempts = 5

	// DefaultHealthPollDelay is the fixed backoff between health polls.
	DefaultHealthPollDelay = time.Second
)

// Starter launches the embedding microservice process. It returns once the
// process has been spawned; readiness is established by health polling.
type Starter func(ctx context.Context) error

// ScriptStarter returns a Starter that launches the service start script
// under the given interpreter and leaves it running detached.
func ScriptStarter(interpreter, startScript string, port int) Starter {
	return func(ctx context.Context) error {
		cmd := exec.Command(interpreter, startScript, fmt.Sprintf("--port=%d", port))
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: failed to start service: %v", ErrBackendUnavailable, err)
		}
		// Reap the child when it eventually exits so it never zombies.
		go func() { _ = cmd.Wait() }()
		return nil
	}
}

// ServiceBackend embeds text through the HTTP microservice, starting the
// service and polling its health endpoint when it is not already running.
type ServiceBackend struct {
	client       *ServiceClient
	starter      Starter
	pollAttempts int
	pollDelay    time.Duration
	logger       *slog.Logger
}

// ServiceBackendConfig configures a ServiceBackend.
type ServiceBackendConfig struct {
	Client       *ServiceClient
	Starter      Starter
	PollAttempts int
	PollDelay    time.Duration
	Logger       *slog.Logger
}

// NewServiceBackend creates the microservice-backed embedding strategy.
func NewServiceBackend(cfg ServiceBackendConfig) *ServiceBackend {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultHealthPollAttempts
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultHealthPollDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ServiceBackend{
		client:       cfg.Client,
		starter:      cfg.Starter,
		pollAttempts: cfg.PollAttempts,
		pollDelay:    cfg.PollDelay,
		logger:       cfg.Logger,
	}
}

// Name identifies the backend in logs and metrics.
func (b *ServiceBackend) Name() string { return "service" }

// TryEmbed requests a vector over HTTP. An unhealthy or unreachable service
// gets one start-and-poll cycle before the backend reports unavailability.
func (b *ServiceBackend) TryEmbed(ctx context.Context, text string) ([]float32, error) {
	if !b.client.Health(ctx) {
		if err := b.ensureRunning(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := b.client.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}

	// One restart-and-retry cycle: the service may have died between the
	// health check and the embed call.
	b.logger.Warn("embedding service call failed, restarting once", "error", err)
	if restartErr := b.ensureRunning(ctx); restartErr != nil {
		return nil, restartErr
	}
	return b.client.Embed(ctx, text)
}

// ensureRunning starts the service and polls health with a fixed backoff
// until it answers or attempts run out.
func (b *ServiceBackend) ensureRunning(ctx context.Context) error {
	if b.starter == nil {
		return fmt.Errorf("%w: service is down and no starter is configured", ErrBackendUnavailable)
	}

	b.logger.Info("embedding service not healthy, starting it")
	if err := b.starter(ctx); err != nil {
		return err
	}

	for attempt := 1; attempt <= b.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
		case <-time.After(b.pollDelay):
		}

		if b.client.Health(ctx) {
			b.logger.Info("embedding service is up", "attempts", attempt)
			return nil
		}
		b.logger.Debug("waiting for embedding service", "attempt", attempt, "max", b.pollAttempts)
	}

	return fmt.Errorf("%w: service did not become healthy after %d polls", ErrBackendUnavailable, b.pollAttempts)
}
