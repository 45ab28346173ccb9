// Package ingest turns uploaded PDF documents into indexed knowledge base
// chunks with page-level provenance.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studykit/brain/internal/chunker"
	"github.com/studykit/brain/internal/extract"
	"github.com/studykit/brain/internal/kb"
)

// maxPageText caps the text taken from a single page before chunking.
const maxPageText = 10000

// chunkWorkers bounds concurrent per-page chunking.
const chunkWorkers = 4

// Extractor pulls per-page text out of a document. extract.Pages satisfies
// it; tests substitute scripted pages.
type Extractor func(doc []byte, maxPages int) []extract.Page

// Indexer receives the finished chunks. *kb.Store implements it.
type Indexer interface {
	Add(docID string, chunks []kb.Chunk) error
}

// Service ingests documents into the knowledge base.
type Service struct {
	index   Indexer
	extract Extractor
	logger  *slog.Logger
}

// New creates a Service using the standard PDF extractor.
func New(index Indexer, logger *slog.Logger) *Service {
	return NewWithExtractor(index, extract.Pages, logger)
}

// NewWithExtractor creates a Service with a custom page extractor.
func NewWithExtractor(index Indexer, ex Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, extract: ex, logger: logger}
}

// Ingest extracts, chunks, and indexes a PDF document. Unreadable pages are
// skipped; readable pages around them are still indexed. Each chunk carries
// a source label of the form "name | page P, chunk C" with 1-based numbers.
// Returns the number of chunks indexed. A document yielding no text indexes
// nothing and returns 0.
func (s *Service) Ingest(ctx context.Context, doc []byte, sourceName string) (int, error) {
	pages := s.extract(doc, extract.MaxPagesIndex)
	if len(pages) == 0 {
		s.logger.Info("no extractable pages", "source", sourceName)
		return 0, nil
	}

	// Pages chunk independently; the slice keeps page order stable.
	perPage := make([][]kb.Chunk, len(pages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkWorkers)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text := page.Text
			if len(text) > maxPageText {
				text = text[:maxPageText]
			}
			chunks, err := chunker.Split(text, chunker.Options{})
			if err != nil {
				return fmt.Errorf("chunking page %d: %w", page.Number, err)
			}
			labeled := make([]kb.Chunk, len(chunks))
			for j, c := range chunks {
				labeled[j] = kb.Chunk{
					Text:   c,
					Source: fmt.Sprintf("%s | page %d, chunk %d", sourceName, page.Number, j+1),
				}
			}
			perPage[i] = labeled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var all []kb.Chunk
	for _, chunks := range perPage {
		all = append(all, chunks...)
	}
	if len(all) == 0 {
		return 0, nil
	}

	docID := uuid.NewString()
	if err := s.index.Add(docID, all); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", sourceName, err)
	}
	s.logger.Info("document ingested", "source", sourceName, "doc_id", docID, "pages", len(pages), "chunks", len(all))
	return len(all), nil
}
