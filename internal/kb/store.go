// Package kb implements the knowledge base: an insertion-ordered chunk
// sequence persisted in SQLite with a derived sparse TF-IDF index.
//
// The index is rebuilt from scratch on every write. That is a deliberate
// trade-off: the matrix always reflects exactly the current chunk set, at
// O(total chunks) cost per add. Rebuilds happen off to the side and the
// finished snapshot is swapped in under the writer lock, so readers see
// either the pre- or post-rebuild state, never a mix. Fine for corpora up
// to a few thousand chunks; beyond that an incremental index is needed.
package kb

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/studykit/brain/internal/storage"
	"github.com/studykit/brain/internal/tfidf"
)

var (
	// ErrInvalidTopK is returned when a query asks for a non-positive
	// number of results.
	ErrInvalidTopK = errors.New("topK must be positive")

	// ErrIndexInconsistent indicates the chunk sequence and vector matrix
	// diverged. This is a programming error, not a runtime condition.
	ErrIndexInconsistent = errors.New("chunk count and index row count differ")
)

// Chunk is one unit of indexed knowledge. Source is a human-readable
// provenance label such as "notes.pdf | page 3, chunk 2".
type Chunk struct {
	Text   string
	Source string
}

// Result is a retrieved chunk with its similarity score in [0, 1].
type Result struct {
	Score float64
	Chunk Chunk
}

// Persister abstracts chunk persistence. *storage.Store implements it.
type Persister interface {
	AppendChunks(records []storage.ChunkRecord) error
	LoadChunks() ([]storage.ChunkRecord, error)
	DeleteAllChunks() error
}

// snapshot is an immutable chunk sequence with its matching vector matrix.
// Invariant: len(matrix) == len(chunks).
type snapshot struct {
	chunks     []Chunk
	vectorizer *tfidf.Vectorizer
	matrix     []tfidf.Vector
}

// Store owns the chunk sequence and its derived index. Concurrent readers
// operate on a stable snapshot; writers are serialized and swap in a fully
// rebuilt snapshot.
type Store struct {
	db          Persister
	maxFeatures int
	logger      *slog.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// Open loads all persisted chunks and builds the initial index.
// maxFeatures <= 0 selects the vectorizer default.
func Open(db Persister, maxFeatures int) (*Store, error) {
	records, err := db.LoadChunks()
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}

	chunks := make([]Chunk, len(records))
	for i, r := range records {
		chunks[i] = Chunk{Text: r.Text, Source: r.Source}
	}

	s := &Store{db: db, maxFeatures: maxFeatures, logger: slog.Default()}
	snap, err := s.build(chunks)
	if err != nil {
		return nil, err
	}
	s.snap = snap
	s.logger.Info("knowledge base loaded", "chunks", len(chunks))
	return s, nil
}

// build fits a fresh vectorizer over the chunk texts and returns the new
// snapshot. The caller swaps it in; nothing here touches shared state.
func (s *Store) build(chunks []Chunk) (*snapshot, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectorizer := tfidf.NewVectorizer(s.maxFeatures)
	matrix := vectorizer.FitTransform(texts)
	if len(matrix) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d rows", ErrIndexInconsistent, len(chunks), len(matrix))
	}
	return &snapshot{chunks: chunks, vectorizer: vectorizer, matrix: matrix}, nil
}

// Add appends chunks to the sequence, persists them, and rebuilds the whole
// index. The new snapshot becomes visible only after both the database write
// and the rebuild succeed.
func (s *Store) Add(docID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if c.Text == "" {
			return fmt.Errorf("chunk %d has empty text", i)
		}
	}

	records := make([]storage.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = storage.ChunkRecord{DocID: docID, Text: c.Text, Source: c.Source}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.AppendChunks(records); err != nil {
		return fmt.Errorf("persisting chunks: %w", err)
	}

	combined := make([]Chunk, 0, len(s.snap.chunks)+len(chunks))
	combined = append(combined, s.snap.chunks...)
	combined = append(combined, chunks...)

	snap, err := s.build(combined)
	if err != nil {
		return err
	}
	s.snap = snap
	s.logger.Debug("index rebuilt", "chunks", len(combined), "added", len(chunks))
	return nil
}

// Query scores every stored chunk against the question and returns the topK
// best matches, ordered by descending similarity with ties broken by
// insertion order. An empty store returns no results and no error.
func (s *Store) Query(question string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	if len(snap.chunks) == 0 {
		return nil, nil
	}

	queryVec := snap.vectorizer.Transform(question)

	results := make([]Result, len(snap.chunks))
	for i, row := range snap.matrix {
		results[i] = Result{Score: tfidf.Cosine(queryVec, row), Chunk: snap.chunks[i]}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Clear discards all chunks and the index. Irreversible and idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteAllChunks(); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	snap, err := s.build(nil)
	if err != nil {
		return err
	}
	s.snap = snap
	s.logger.Info("knowledge base cleared")
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snap.chunks)
}
