// Package summarize produces study summaries of PDF documents using
// page-by-page map-reduce: each page is summarized independently, then the
// page summaries are synthesized into one final summary.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/studykit/brain/internal/extract"
	"github.com/studykit/brain/internal/provider"
)

const (
	// maxPageText caps how much of each page goes into its summary prompt.
	maxPageText = 2000
	// maxPageSummaries caps how many per-page summaries reach synthesis.
	maxPageSummaries = 10
	// maxCombined caps the synthesis prompt's input.
	maxCombined = 5000
	// summaryWorkers bounds concurrent per-page generation calls.
	summaryWorkers = 4

	combinedTruncationMarker = "\n\n[Summary truncated...]"
)

// Generator produces text from a prompt. *provider.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (string, error)
}

// Extractor pulls per-page text out of a document. extract.Pages satisfies it.
type Extractor func(doc []byte, maxPages int) []extract.Page

// Service summarizes documents.
type Service struct {
	gen     Generator
	extract Extractor
	logger  *slog.Logger
}

// New creates a Service using the standard PDF extractor.
func New(gen Generator, logger *slog.Logger) *Service {
	return NewWithExtractor(gen, extract.Pages, logger)
}

// NewWithExtractor creates a Service with a custom page extractor.
func NewWithExtractor(gen Generator, ex Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, extract: ex, logger: logger}
}

// pageSummary pairs a page number with its summary for ordered assembly.
type pageSummary struct {
	number  int
	summary string
}

// Summarize produces a study summary of the document. Pages that fail to
// parse or to summarize are skipped; the summary covers whatever survived.
// With simple set, the summary is additionally rewritten in beginner terms.
func (s *Service) Summarize(ctx context.Context, doc []byte, mode provider.Mode, simple bool) (string, error) {
	pages := s.extract(doc, extract.MaxPagesSummary)
	if len(pages) == 0 {
		return "", fmt.Errorf("no extractable text; the document may be scanned or unreadable")
	}

	var (
		mu        sync.Mutex
		summaries []pageSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryWorkers)
	for _, page := range pages {
		g.Go(func() error {
			text := page.Text
			if len(text) > maxPageText {
				text = text[:maxPageText] + "..."
			}
			prompt := fmt.Sprintf(
				"Summarize page %d of %d in 2-3 bullet points, each under 15 words.\n\n%s",
				page.Number, len(pages), text)

			summary, err := s.gen.Generate(gctx, provider.Request{Prompt: prompt, Mode: mode})
			if err != nil {
				// One failed page should not sink the whole summary.
				s.logger.Warn("page summary failed, skipping", "page", page.Number, "error", err)
				return nil
			}
			mu.Lock()
			summaries = append(summaries, pageSummary{number: page.Number, summary: firstLines(summary, 3)})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", fmt.Errorf("no page could be summarized")
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].number < summaries[j].number })
	if len(summaries) > maxPageSummaries {
		summaries = summaries[:maxPageSummaries]
	}

	lines := make([]string, len(summaries))
	for i, ps := range summaries {
		lines[i] = fmt.Sprintf("Page %d: %s", ps.number, ps.summary)
	}
	combined := strings.Join(lines, "\n")
	if len(combined) > maxCombined {
		combined = combined[:maxCombined] + combinedTruncationMarker
	}

	synthPrompt := "Using the following page summaries, produce:\n" +
		"1) One short 5-sentence summary\n" +
		"2) 2 real-world examples\n" +
		"3) 4 exam-style questions\n\n" +
		combined

	final, err := s.gen.Generate(ctx, provider.Request{Prompt: synthPrompt, Mode: mode})
	if err != nil {
		return "", fmt.Errorf("synthesizing summary: %w", err)
	}

	if !simple {
		return final, nil
	}
	simplePrompt := "Rewrite this summary in very simple beginner-level terms:\n\n" + final
	rewritten, err := s.gen.Generate(ctx, provider.Request{Prompt: simplePrompt, Mode: mode})
	if err != nil {
		// The full summary still has value on its own.
		s.logger.Warn("simple rewrite failed", "error", err)
		return final, nil
	}
	return final + "\n\n---\n\nSimple explanation:\n" + rewritten, nil
}

// firstLines keeps at most n lines of s.
func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
