// Package chunker splits raw document text into overlapping fixed-size
// windows. Overlap between adjacent windows preserves context across chunk
// boundaries, which matters for retrieval quality on sentence fragments.
package chunker

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultChunkSize is the window width in bytes.
	DefaultChunkSize = 800
	// DefaultOverlap is how many bytes adjacent windows share.
	DefaultOverlap = 100

	// maxTextSize caps input length. Anything beyond is truncated before
	// chunking; the limit exists to bound memory, not to be precise.
	maxTextSize = 10 << 20 // 10MB
)

// Options controls window geometry. The zero value selects both defaults.
// A caller that sets ChunkSize takes Overlap as given, so an explicit
// ChunkSize with a zero Overlap means non-overlapping windows.
type Options struct {
	ChunkSize int
	Overlap   int
}

// withDefaults fills in defaults only for the fully-zero value. Overlap is
// never defaulted on its own: DefaultOverlap could exceed a small custom
// ChunkSize, and zero overlap must stay expressible.
func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
		if o.Overlap == 0 {
			o.Overlap = DefaultOverlap
		}
	}
	return o
}

func (o Options) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("overlap must not be negative, got %d", o.Overlap)
	}
	if o.Overlap >= o.ChunkSize {
		// Advancing by chunkSize-overlap would never progress.
		return fmt.Errorf("overlap %d must be smaller than chunk size %d", o.Overlap, o.ChunkSize)
	}
	return nil
}

// Split slices text into ordered, overlapping windows of at most
// opts.ChunkSize bytes. Each window is trimmed of surrounding whitespace and
// dropped if nothing remains. Empty input yields no chunks; input that fits
// in a single window is returned as one chunk.
func Split(text string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if text == "" {
		return nil, nil
	}

	if len(text) > maxTextSize {
		slog.Warn("chunker input truncated", "original_bytes", len(text), "max_bytes", maxTextSize)
		text = text[:maxTextSize]
	}

	if len(text) <= opts.ChunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}, nil
		}
		return nil, nil
	}

	step := opts.ChunkSize - opts.Overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := min(start+opts.ChunkSize, len(text))
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}
