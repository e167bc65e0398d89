// Package memory provides an in-memory warehouse for tests and local runs
// without a database.
package memory

import (
	"context"
	"sync"

	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// Store implements pipeline.Warehouse with maps. It honors the same
// contract as the Postgres store: merge is insert-only-new by link.
type Store struct {
	mu      sync.Mutex
	staging []pipeline.MovieRecord
	main    map[string]pipeline.MovieRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{main: make(map[string]pipeline.MovieRecord)}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *Store) EnsureSchema(_ context.Context) error { return nil }

// Stage replaces the staging contents with batch.
func (s *Store) Stage(_ context.Context, batch []pipeline.MovieRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = append([]pipeline.MovieRecord(nil), batch...)
	return nil
}

// MergeToMain inserts staged records whose link is not yet present and
// returns the count of new rows.
func (s *Store) MergeToMain(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, rec := range s.staging {
		if _, exists := s.main[rec.Link]; exists {
			continue
		}
		s.main[rec.Link] = rec
		inserted++
	}
	return inserted, nil
}

// TruncateStaging empties the staging area.
func (s *Store) TruncateStaging(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = nil
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// MainCount reports the number of records in the permanent store.
func (s *Store) MainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.main)
}

// StagedCount reports the number of currently staged records.
func (s *Store) StagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staging)
}

// Get returns the permanent record for link, if present.
func (s *Store) Get(link string) (pipeline.MovieRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.main[link]
	return rec, ok
}

// Seed inserts records directly into the permanent store, bypassing staging.
// Intended for tests.
func (s *Store) Seed(records ...pipeline.MovieRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.main[rec.Link] = rec
	}
}
