// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tibialore/boss-sync/internal/boss"
)

// BossStore keeps boss records in a map keyed by slug.
type BossStore struct {
	mu      sync.RWMutex
	records map[string]boss.Record
}

// NewBossStore creates an empty in-memory boss store.
func NewBossStore() *BossStore {
	return &BossStore{records: make(map[string]boss.Record)}
}

// Upsert replaces the record stored under its slug.
func (s *BossStore) Upsert(_ context.Context, rec boss.Record) error {
	if rec.Slug == "" {
		return fmt.Errorf("record slug is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Slug] = rec
	return nil
}

// UpsertBatch upserts every record, returning the success count.
func (s *BossStore) UpsertBatch(ctx context.Context, recs []boss.Record) (int, error) {
	saved := 0
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			continue
		}
		saved++
	}
	return saved, nil
}

// FindBySlug returns the stored record or boss.ErrNotFound.
func (s *BossStore) FindBySlug(_ context.Context, slug string) (boss.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[slug]
	if !ok {
		return boss.Record{}, boss.ErrNotFound
	}
	return rec, nil
}

// List returns records ordered by name.
func (s *BossStore) List(_ context.Context, offset, limit int) ([]boss.Record, error) {
	return s.page(s.sorted(), offset, limit), nil
}

// Search returns records whose name contains the query, case-insensitive.
func (s *BossStore) Search(_ context.Context, query string, offset, limit int) ([]boss.Record, error) {
	query = strings.ToLower(query)
	var matched []boss.Record
	for _, rec := range s.sorted() {
		if strings.Contains(strings.ToLower(rec.Name), query) {
			matched = append(matched, rec)
		}
	}
	return s.page(matched, offset, limit), nil
}

// Count returns the number of stored records.
func (s *BossStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *BossStore) sorted() []boss.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]boss.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *BossStore) page(recs []boss.Record, offset, limit int) []boss.Record {
	if offset >= len(recs) {
		return []boss.Record{}
	}
	end := offset + limit
	if limit <= 0 || end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end]
}
