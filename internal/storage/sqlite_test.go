package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration version = %d, want 1", versions[0])
	}
}

func TestAppendAndLoadChunks(t *testing.T) {
	s := openTestStore(t)

	records := []ChunkRecord{
		{DocID: "d1", Text: "first chunk", Source: "notes.pdf | page 1, chunk 1"},
		{DocID: "d1", Text: "second chunk", Source: "notes.pdf | page 1, chunk 2"},
		{DocID: "d1", Text: "third chunk", Source: "notes.pdf | page 2, chunk 1"},
	}
	if err := s.AppendChunks(records); err != nil {
		t.Fatalf("AppendChunks: %v", err)
	}

	loaded, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("got %d chunks, want 3", len(loaded))
	}
	for i, r := range loaded {
		if r.Text != records[i].Text {
			t.Errorf("chunk %d text = %q, want %q", i, r.Text, records[i].Text)
		}
		if r.Source != records[i].Source {
			t.Errorf("chunk %d source = %q, want %q", i, r.Source, records[i].Source)
		}
		if r.Seq <= 0 {
			t.Errorf("chunk %d seq = %d, want positive", i, r.Seq)
		}
		if i > 0 && loaded[i].Seq <= loaded[i-1].Seq {
			t.Errorf("seq not ascending at index %d", i)
		}
	}
}

func TestAppendChunks_PreservesBatchOrderAcrossCalls(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendChunks([]ChunkRecord{{DocID: "a", Text: "alpha", Source: "s1"}}); err != nil {
		t.Fatalf("AppendChunks: %v", err)
	}
	if err := s.AppendChunks([]ChunkRecord{{DocID: "b", Text: "beta", Source: "s2"}}); err != nil {
		t.Fatalf("AppendChunks: %v", err)
	}

	loaded, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if loaded[0].Text != "alpha" || loaded[1].Text != "beta" {
		t.Errorf("insertion order not preserved: %+v", loaded)
	}
}

func TestAppendChunks_EmptyBatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendChunks(nil); err != nil {
		t.Fatalf("AppendChunks(nil): %v", err)
	}
	count, err := s.CountChunks()
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestAppendChunks_SetsCreatedAt(t *testing.T) {
	s := openTestStore(t)

	before := time.Now().UTC().Add(-time.Minute)
	if err := s.AppendChunks([]ChunkRecord{{DocID: "d", Text: "t", Source: "s"}}); err != nil {
		t.Fatalf("AppendChunks: %v", err)
	}
	loaded, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if loaded[0].CreatedAt.Before(before) {
		t.Errorf("created_at %v not set to current time", loaded[0].CreatedAt)
	}
}

func TestDeleteAllChunks(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendChunks([]ChunkRecord{{DocID: "d", Text: "t", Source: "s"}}); err != nil {
		t.Fatalf("AppendChunks: %v", err)
	}
	if err := s.DeleteAllChunks(); err != nil {
		t.Fatalf("DeleteAllChunks: %v", err)
	}
	count, err := s.CountChunks()
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	// Deleting an already-empty table is fine.
	if err := s.DeleteAllChunks(); err != nil {
		t.Fatalf("second DeleteAllChunks: %v", err)
	}
}
