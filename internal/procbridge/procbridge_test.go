package procbridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testPayload struct {
	Text  string    `json:"text"`
	Nums  []float64 `json:"nums"`
	Count int       `json:"count"`
}

// writeScript drops a shell script into dir and returns its path. Tests use
// "sh" as the interpreter so no external runtime is needed.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// assertNoTempFiles fails if any bridge payload files remain in dir.
func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempFilePrefix) {
			t.Errorf("temp file not cleaned up: %s", entry.Name())
		}
	}
}

func TestRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()

	// The script copies the input payload to the output path verbatim.
	script := writeScript(t, dir, "echo.sh", "#!/bin/sh\ncp \"$1\" \"$2\"\n")
	bridge := New("sh", script, WithTempDir(tempDir))

	input := testPayload{Text: "hello", Nums: []float64{1.5, -2.25}, Count: 3}
	var output testPayload
	if err := bridge.Run(context.Background(), input, &output); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if output.Text != input.Text || output.Count != input.Count || len(output.Nums) != len(input.Nums) {
		t.Errorf("round trip mismatch: got %+v, want %+v", output, input)
	}

	assertNoTempFiles(t, tempDir)
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()

	script := writeScript(t, dir, "fail.sh", "#!/bin/sh\necho 'boom' >&2\nexit 3\n")
	bridge := New("sh", script, WithTempDir(tempDir))

	var output testPayload
	err := bridge.Run(context.Background(), testPayload{}, &output)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("expected exit code 3, got %d", exitErr.Code)
	}
	if !strings.Contains(exitErr.Stderr, "boom") {
		t.Errorf("expected stderr captured, got %q", exitErr.Stderr)
	}

	assertNoTempFiles(t, tempDir)
}

func TestRunMissingOutputIsProtocolViolation(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()

	// Exits cleanly without writing the output file.
	script := writeScript(t, dir, "silent.sh", "#!/bin/sh\nexit 0\n")
	bridge := New("sh", script, WithTempDir(tempDir))

	var output testPayload
	err := bridge.Run(context.Background(), testPayload{}, &output)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}

	assertNoTempFiles(t, tempDir)
}

func TestRunMalformedOutputIsProtocolViolation(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()

	script := writeScript(t, dir, "garbage.sh", "#!/bin/sh\necho 'not json' > \"$2\"\n")
	bridge := New("sh", script, WithTempDir(tempDir))

	var output testPayload
	err := bridge.Run(context.Background(), testPayload{}, &output)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}

	assertNoTempFiles(t, tempDir)
}

func TestRunTimeoutKillsChildAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()

	script := writeScript(t, dir, "slow.sh", "#!/bin/sh\nsleep 30\n")
	bridge := New("sh", script, WithTempDir(tempDir), WithTimeout(100*time.Millisecond))

	var output testPayload
	start := time.Now()
	err := bridge.Run(context.Background(), testPayload{}, &output)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}

	assertNoTempFiles(t, tempDir)
}

func TestRunBadInterpreter(t *testing.T) {
	tempDir := t.TempDir()
	bridge := New("definitely-not-an-interpreter", "script.py", WithTempDir(tempDir))

	var output testPayload
	err := bridge.Run(context.Background(), testPayload{}, &output)
	if err == nil {
		t.Fatal("expected error for missing interpreter")
	}
	if errors.Is(err, ErrProtocolViolation) || errors.Is(err, ErrTimeout) {
		t.Errorf("spawn failure should not be a protocol or timeout error: %v", err)
	}

	assertNoTempFiles(t, tempDir)
}
