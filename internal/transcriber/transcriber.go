// Package transcriber defines the opaque audio-to-text collaborator the
// Job Engine calls out to, and the tagged result/error types that replace
// "exceptions as control flow" (spec.md §9) with something the engine can
// switch on directly.
package transcriber

import "strings"

// Result is what a successful transcription returns.
type Result struct {
	Text       string
	Language   string
	DurationMs int
}

// Transcriber turns an audio file into text. Implementations are not
// assumed thread-safe across concurrent calls; the engine never calls one
// concurrently with itself for the same instance, but callers composing
// multiple workers over one Transcriber must serialize internally if the
// underlying model requires it.
type Transcriber interface {
	Transcribe(audioPath string) (Result, error)
}

// TransientError marks a failure the Job Engine should retry with backoff,
// as opposed to a terminal transcription error. This is the typed
// replacement for the substring-matching fallback below — implementations
// that know their own failure is transient should return this type instead
// of a plain error.
type TransientError struct {
	Message string
}

func (e *TransientError) Error() string { return e.Message }

// transientNeedles mirrors the teacher's compatibility fallback: when an
// implementation returns a plain error (not *TransientError), the engine
// still recognizes these as transient via case-insensitive substring match.
var transientNeedles = []string{
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"connection aborted",
	"network",
	"502",
	"503",
	"504",
}

// IsTransient classifies err per spec.md §4.3 "Failure handling": a typed
// *TransientError is always transient; any other error falls back to a
// case-insensitive substring match against transientNeedles.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*TransientError); ok {
		return true
	}
	lowered := strings.ToLower(err.Error())
	for _, needle := range transientNeedles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}
