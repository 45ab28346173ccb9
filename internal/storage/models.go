package storage

import "time"

// ChunkRecord is one persisted knowledge-base chunk. Seq is assigned by the
// database and defines insertion order; DocID groups the chunks produced by
// a single ingestion call.
type ChunkRecord struct {
	Seq       int64
	DocID     string
	Text      string
	Source    string
	CreatedAt time.Time
}
