package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is a Store kept in process memory. Records are copied in and
// out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) FindByKey(_ context.Context, ownerID string, column KeyColumn, key string) (*Record, error) {
	if column != KeyCanonicalCode && column != KeyBarcode {
		return nil, fmt.Errorf("unknown key column %q", column)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if (column == KeyCanonicalCode && rec.CanonicalCode == key) || (column == KeyBarcode && rec.Barcode == key) {
			out := clone(rec)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	s.records[rec.ID] = clone(*rec)
	return nil
}

// Update replaces the record's fields except the suggested price and
// creation time.
func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		return fmt.Errorf("update %s: %w", rec.ID, ErrNotFound)
	}
	updated := clone(*rec)
	updated.SuggestedPrice = existing.SuggestedPrice
	updated.CreatedAt = existing.CreatedAt
	s.records[rec.ID] = updated
	return nil
}

func (s *MemoryStore) SetSuggestedPrice(_ context.Context, id string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("set price %s: %w", id, ErrNotFound)
	}
	rec.SuggestedPrice = &price
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(rec)
	return &out, nil
}

// List returns the owner's records, most recently scanned first.
func (s *MemoryStore) List(_ context.Context, ownerID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastScannedAt.Equal(out[j].LastScannedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastScannedAt.After(out[j].LastScannedAt)
	})
	return out, nil
}

func clone(r Record) Record {
	r.Authors = append([]string(nil), r.Authors...)
	r.Categories = append([]string(nil), r.Categories...)
	if r.SuggestedPrice != nil {
		p := *r.SuggestedPrice
		r.SuggestedPrice = &p
	}
	return r
}
