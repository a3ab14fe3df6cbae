// Package procbridge runs an external script as a subprocess, handing the
// request and response payloads over as temporary JSON files. Payload size
// is therefore never bounded by argv limits: the child receives exactly two
// positional arguments, the input path and the output path.
package procbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds a single subprocess invocation wall-clock.
	DefaultTimeout = 30 * time.Second

	tempFilePrefix = "membridge"
)

var (
	// ErrTimeout indicates the child process did not exit before the
	// deadline and was killed.
	ErrTimeout = errors.New("subprocess timed out")

	// ErrProtocolViolation indicates the child exited cleanly but the
	// output file was missing or unparseable. This is a bug signal in the
	// script, not an application-level failure.
	ErrProtocolViolation = errors.New("subprocess protocol violation")
)

// ExitError wraps a non-zero subprocess exit so callers can distinguish an
// application error in the script from a protocol violation.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("subprocess exited with code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("subprocess exited with code %d", e.Code)
}

// Bridge invokes one external script. The zero value is not usable; create
// instances with New.
type Bridge struct {
	interpreter string
	scriptPath  string
	timeout     time.Duration
	tempDir     string
	logger      *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout overrides the default subprocess timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithTempDir overrides the directory used for payload files.
func WithTempDir(dir string) Option {
	return func(b *Bridge) {
		if dir != "" {
			b.tempDir = dir
		}
	}
}

// WithLogger sets the logger used for per-invocation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Bridge that runs scriptPath under the given interpreter
// (for example "python3").
func New(interpreter, scriptPath string, opts ...Option) *Bridge {
	b := &Bridge{
		interpreter: interpreter,
		scriptPath:  scriptPath,
		timeout:     DefaultTimeout,
		tempDir:     os.TempDir(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run serializes input to a temporary file, invokes the script with the
// input and output paths as its only arguments, and parses the output file
// into output. Both temporary files are removed on every exit path,
// including timeout: the child is killed first, then cleanup runs.
func (b *Bridge) Run(ctx context.Context, input, output any) error {
	token := uuid.NewString()
	inputPath := filepath.Join(b.tempDir, fmt.Sprintf("%s-%s-input.json", tempFilePrefix, token))
	outputPath := filepath.Join(b.tempDir, fmt.Sprintf("%s-%s-output.json", tempFilePrefix, token))

	defer func() {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove bridge input file", "path", inputPath, "error", err)
		}
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove bridge output file", "path", outputPath, "error", err)
		}
	}()

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge input: %w", err)
	}
	if err := os.WriteFile(inputPath, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write bridge input file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.interpreter, b.scriptPath, inputPath, outputPath)
	var stderr limitedBuffer
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	b.logger.Debug("bridge subprocess finished",
		"script", b.scriptPath,
		"duration", time.Since(start),
		"error", runErr)

	if runErr != nil {
		// CommandContext kills the child when the deadline fires; surface
		// that as a timeout rather than the opaque "signal: killed".
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %s: %s", ErrTimeout, b.timeout, b.scriptPath)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("failed to start subprocess %s: %w", b.interpreter, runErr)
	}

	result, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("%w: output file missing after clean exit: %v", ErrProtocolViolation, err)
	}
	if err := json.Unmarshal(result, output); err != nil {
		return fmt.Errorf("%w: output file unparseable: %v", ErrProtocolViolation, err)
	}

	return nil
}

// limitedBuffer captures at most 4 KiB of stderr for error reporting.
type limitedBuffer struct {
	data []byte
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	const limit = 4096
	if len(lb.data) < limit {
		remaining := limit - len(lb.data)
		if len(p) < remaining {
			remaining = len(p)
		}
		lb.data = append(lb.data, p[:remaining]...)
	}
	return len(p), nil
}

func (lb *limitedBuffer) String() string {
	return string(lb.data)
}
