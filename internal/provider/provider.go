// Package provider routes generation requests across a primary cloud
// backend and a local fallback, classifying failures so callers can tell
// rate limiting from exhausted quota from plain network trouble.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind categorizes a backend failure.
type Kind int

const (
	// KindUnclassified covers failures that match no known pattern.
	KindUnclassified Kind = iota
	// KindRateLimit means the backend throttled the request; retrying later
	// may succeed.
	KindRateLimit
	// KindQuotaExceeded means a daily or billing quota is spent; retrying
	// today will not help.
	KindQuotaExceeded
	// KindNetwork means the backend could not be reached.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNetwork:
		return "network"
	default:
		return "unclassified"
	}
}

// BackendError is a classified failure from a named backend.
type BackendError struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ErrUnavailable is returned when the requested backend is not configured.
var ErrUnavailable = errors.New("backend not available")

// Classify inspects an error and assigns a Kind. Backends surface failures
// as opaque wrapped errors, so classification falls back to message
// patterns when no typed signal is available.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") && (strings.Contains(msg, "daily") || strings.Contains(msg, "exceeded")):
		return KindQuotaExceeded
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "no such host"):
		return KindNetwork
	default:
		return KindUnclassified
	}
}

// Mode selects which backend handles a request.
type Mode string

const (
	// ModeAuto tries the primary backend and falls back on failure.
	ModeAuto Mode = "auto"
	// ModeGemini forces the cloud backend with no fallback.
	ModeGemini Mode = "gemini"
	// ModeOllama forces the local backend with no fallback.
	ModeOllama Mode = "ollama"
)

// ParseMode validates a mode string. Empty selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeGemini:
		return ModeGemini, nil
	case ModeOllama:
		return ModeOllama, nil
	default:
		return "", fmt.Errorf("unknown provider mode %q", s)
	}
}

// Message is one chat turn. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is one element of a response stream: either a piece of text or
// a terminal error. A Fragment with a non-nil Err is always the last one.
type Fragment struct {
	Text string
	Err  error
}

// Backend generates text. Implementations wrap one concrete engine.
type Backend interface {
	// Name identifies the backend in logs and error messages.
	Name() string
	// Generate produces a complete response for a single prompt.
	// An empty model selects the backend default.
	Generate(ctx context.Context, model, prompt string) (string, error)
	// StreamChat produces a response stream for a conversation. The
	// returned channel is closed after the final fragment. Cancelling ctx
	// stops the stream.
	StreamChat(ctx context.Context, model string, messages []Message) <-chan Fragment
}
