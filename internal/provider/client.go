package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	generateTimeout = 120 * time.Second
	streamTimeout   = 300 * time.Second

	// fragmentBuffer absorbs bursts from fast backends without letting an
	// unread stream grow without bound.
	fragmentBuffer = 16
)

// Client routes requests to a primary backend with an optional fallback.
// Either backend may be nil when not configured; at least one must be set.
type Client struct {
	primary  Backend
	fallback Backend
	logger   *slog.Logger
}

// NewClient builds a Client. primary is typically the cloud backend and
// fallback the local one; pass nil for whichever is not configured.
func NewClient(primary, fallback Backend, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{primary: primary, fallback: fallback, logger: logger}
}

// Request is a single-shot generation request.
type Request struct {
	Prompt string
	Mode   Mode
	Model  string
}

// Generate produces a complete response, honoring the request mode.
// In auto mode any primary failure triggers one fallback attempt; in an
// explicit mode the named backend's failure is final.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	backend, fallback, err := c.route(req.Mode)
	if err != nil {
		return "", err
	}

	text, err := backend.Generate(ctx, req.Model, req.Prompt)
	if err == nil {
		return text, nil
	}
	if fallback == nil {
		return "", &BackendError{Backend: backend.Name(), Kind: Classify(err), Err: err}
	}

	kind := Classify(err)
	c.logger.Warn("primary backend failed, falling back",
		"backend", backend.Name(), "kind", kind.String(), "error", err)

	text, fbErr := fallback.Generate(ctx, req.Model, req.Prompt)
	if fbErr != nil {
		return "", fmt.Errorf("fallback after %s failure (%s): %w", backend.Name(), kind, fbErr)
	}
	return text, nil
}

// ChatRequest is a streaming chat request.
type ChatRequest struct {
	Messages []Message
	Mode     Mode
	Model    string
}

// StreamChat produces a response stream, honoring the request mode. The
// fallback fires only when the primary fails before delivering anything:
// once a fragment has reached the consumer the response cannot be
// restarted, so a mid-stream failure surfaces as a terminal error
// fragment instead. The returned channel is always closed.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) <-chan Fragment {
	out := make(chan Fragment, fragmentBuffer)

	backend, fallback, err := c.route(req.Mode)
	if err != nil {
		out <- Fragment{Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(ctx, streamTimeout)
		defer cancel()

		delivered, err := c.relay(ctx, backend, req, out)
		if err == nil {
			return
		}

		if delivered > 0 || fallback == nil {
			emit(ctx, out, Fragment{Err: &BackendError{Backend: backend.Name(), Kind: Classify(err), Err: err}})
			return
		}

		kind := Classify(err)
		c.logger.Warn("primary stream failed before first fragment, falling back",
			"backend", backend.Name(), "kind", kind.String(), "error", err)

		if _, fbErr := c.relay(ctx, fallback, req, out); fbErr != nil {
			emit(ctx, out, Fragment{Err: fmt.Errorf("fallback after %s failure (%s): %w", backend.Name(), kind, fbErr)})
		}
	}()
	return out
}

// relay copies one backend's stream to out and reports how many text
// fragments were delivered before completion or failure.
func (c *Client) relay(ctx context.Context, backend Backend, req ChatRequest, out chan<- Fragment) (int, error) {
	delivered := 0
	for frag := range backend.StreamChat(ctx, req.Model, req.Messages) {
		if frag.Err != nil {
			return delivered, frag.Err
		}
		if !emit(ctx, out, frag) {
			return delivered, ctx.Err()
		}
		delivered++
	}
	return delivered, nil
}

// emit sends a fragment unless the context is done. Reports delivery.
func emit(ctx context.Context, out chan<- Fragment, frag Fragment) bool {
	select {
	case out <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

// route resolves the mode to a backend and an optional fallback.
func (c *Client) route(mode Mode) (backend, fallback Backend, err error) {
	switch mode {
	case ModeGemini:
		if c.primary == nil {
			return nil, nil, fmt.Errorf("gemini: %w", ErrUnavailable)
		}
		return c.primary, nil, nil
	case ModeOllama:
		if c.fallback == nil {
			return nil, nil, fmt.Errorf("ollama: %w", ErrUnavailable)
		}
		return c.fallback, nil, nil
	case ModeAuto, "":
		if c.primary != nil {
			return c.primary, c.fallback, nil
		}
		if c.fallback != nil {
			return c.fallback, nil, nil
		}
		return nil, nil, ErrUnavailable
	default:
		return nil, nil, fmt.Errorf("unknown provider mode %q", mode)
	}
}
