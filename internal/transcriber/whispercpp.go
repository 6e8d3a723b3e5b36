package transcriber

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// WhisperCPP shells out to a whisper.cpp-compatible CLI binary per audio
// file. It is the "compatibility fallback" real implementation: no network
// dependency, just a local binary invocation, grounded on the teacher
// pack's exec.Cmd-based transcription runner.
type WhisperCPP struct {
	// BinaryPath is the whisper.cpp CLI executable, e.g. "whisper-cli".
	BinaryPath string
	// ModelPath points at a local ggml model file.
	ModelPath string
	// Language is passed through as-is; empty means auto-detect.
	Language string
	// Timeout bounds a single invocation; zero means no timeout.
	Timeout time.Duration
}

// Transcribe runs the configured binary against audioPath and parses its
// stdout as plain text. A non-zero exit or a killed-by-timeout process is
// reported as a *TransientError so the Job Engine retries it.
func (w *WhisperCPP) Transcribe(audioPath string) (Result, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if w.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	args := []string{"-m", w.ModelPath, "-f", audioPath, "-otxt", "-of", "-"}
	if w.Language != "" {
		args = append(args, "-l", w.Language)
	}

	cmd := exec.CommandContext(ctx, w.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, &TransientError{Message: "whisper.cpp invocation timed out: " + stderr.String()}
	}
	if err != nil {
		return Result{}, &TransientError{Message: "whisper.cpp invocation failed: " + strings.TrimSpace(stderr.String())}
	}

	text := strings.TrimSpace(stdout.String())
	return Result{
		Text:       text,
		Language:   w.Language,
		DurationMs: int(elapsed.Milliseconds()),
	}, nil
}
