// Package answer implements retrieval-augmented question answering:
// retrieve the best-matching chunks, frame them as context, and have a
// generation backend answer from that context alone.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studykit/brain/internal/kb"
	"github.com/studykit/brain/internal/provider"
)

// maxContextChars caps how much of each retrieved chunk enters the prompt.
const maxContextChars = 900

// DefaultTopK is the retrieval depth when the caller does not specify one.
const DefaultTopK = 3

// Searcher retrieves scored chunks for a question. *kb.Store implements it.
type Searcher interface {
	Query(question string, topK int) ([]kb.Result, error)
}

// Generator produces text from a prompt. *provider.Client satisfies it
// through a thin adapter in the caller.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (string, error)
}

// Answer is a generated response with the provenance of the chunks that
// informed it. Sources is empty when nothing relevant was retrieved.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Answerer wires retrieval to generation.
type Answerer struct {
	search Searcher
	gen    Generator
	logger *slog.Logger
}

// New creates an Answerer.
func New(search Searcher, gen Generator, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{search: search, gen: gen, logger: logger}
}

// Ask retrieves up to topK chunks for the question and generates an answer
// grounded in them. topK <= 0 selects DefaultTopK. When retrieval finds
// nothing the question goes to the backend unaugmented and Sources is empty.
func (a *Answerer) Ask(ctx context.Context, question string, topK int, mode provider.Mode) (Answer, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	results, err := a.search.Query(question, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	if len(results) == 0 {
		a.logger.Debug("no context retrieved, answering unaugmented", "question_len", len(question))
		text, err := a.gen.Generate(ctx, provider.Request{Prompt: question, Mode: mode})
		if err != nil {
			return Answer{}, err
		}
		return Answer{Text: text}, nil
	}

	prompt, sources := buildPrompt(question, results)
	text, err := a.gen.Generate(ctx, provider.Request{Prompt: prompt, Mode: mode})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: sources}, nil
}

// buildPrompt frames the retrieved chunks as notes the model must answer
// from. Each chunk is truncated so one oversized chunk cannot crowd out
// the rest of the context window.
func buildPrompt(question string, results []kb.Result) (prompt string, sources []string) {
	parts := make([]string, len(results))
	sources = make([]string, len(results))
	for i, r := range results {
		parts[i] = truncate(r.Chunk.Text, maxContextChars)
		sources[i] = r.Chunk.Source
	}

	var b strings.Builder
	b.WriteString("Use ONLY the notes below to answer the question.\n")
	b.WriteString("If answer is not found in the notes, say: 'Not found in notes.'\n\n")
	b.WriteString("NOTES:\n")
	b.WriteString(strings.Join(parts, "\n\n---\n\n"))
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nGive a clear answer, then list which sources you used.")
	return b.String(), sources
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
