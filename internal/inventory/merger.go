package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/lepinkainen/shelfscan/internal/worker"
)

// Pricer computes a quote for an item. *pricing.Engine implements it.
type Pricer interface {
	Price(ctx context.Context, item pricing.Item, strategy pricing.Strategy, cfg pricing.Config) pricing.Quote
}

// Submitter runs background tasks. *worker.Pool implements it.
type Submitter interface {
	Submit(name string, fn worker.TaskFunc) error
}

// MergeResult describes the outcome of a merge.
type MergeResult struct {
	ID       string `json:"id"`
	Created  bool   `json:"created"`
	Quantity int    `json:"quantity"`
	Record   Record `json:"record"`
}

// Merger upserts scanned items into a Store.
type Merger struct {
	store Store

	pricer   Pricer
	strategy pricing.Strategy
	cfg      pricing.Config
	tasks    Submitter

	source string
	now    func() time.Time
	newID  func() string

	locks keyLocks
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithPricing enables price backfill for new records.
func WithPricing(p Pricer, strategy pricing.Strategy, cfg pricing.Config) MergerOption {
	return func(m *Merger) {
		m.pricer = p
		m.strategy = strategy
		m.cfg = cfg
	}
}

// WithTasks sets where backfill tasks are submitted. Without it backfill is
// skipped.
func WithTasks(s Submitter) MergerOption {
	return func(m *Merger) { m.tasks = s }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) MergerOption {
	return func(m *Merger) { m.now = now }
}

// WithIDGenerator replaces uuid record ids.
func WithIDGenerator(fn func() string) MergerOption {
	return func(m *Merger) { m.newID = fn }
}

// WithSource sets the source tag of created records.
func WithSource(tag string) MergerOption {
	return func(m *Merger) { m.source = tag }
}

// NewMerger creates a Merger over store.
func NewMerger(store Store, opts ...MergerOption) *Merger {
	m := &Merger{
		store:    store,
		strategy: pricing.ActiveListings,
		source:   SourceScan,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge records one scan of code for ownerID and returns the record id.
func (m *Merger) Merge(ctx context.Context, ownerID string, code barcode.Code, meta *product.ItemMetadata, typePreference product.ItemType) (string, error) {
	res, err := m.MergeDetailed(ctx, ownerID, code, meta, typePreference)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// MergeDetailed is Merge returning whether a record was created and its
// quantity. An existing record gets quantity+1 and refreshed metadata but is
// not repriced. A new record starts at quantity 1 in StatusDraft and a price
// backfill is submitted in the background.
func (m *Merger) MergeDetailed(ctx context.Context, ownerID string, code barcode.Code, meta *product.ItemMetadata, typePreference product.ItemType) (MergeResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return MergeResult{}, ErrUnauthenticated
	}
	if !code.Valid() {
		return MergeResult{}, fmt.Errorf("cannot merge %s code %q", code.Kind, code.Digits)
	}
	if meta == nil {
		meta = &product.ItemMetadata{}
	}

	// The resolved type picks the column, so an explicit preference can file
	// a 977 code as a book or an ISBN as a magazine.
	finalType := resolveType(typePreference, meta.Type)
	column, key := KeyCanonicalCode, code.Digits
	if finalType == product.TypeMagazine {
		column, key = KeyBarcode, code.MatchKey()
	}

	unlock := m.locks.lock(ownerID + "|" + string(column) + "|" + key)
	defer unlock()

	existing, err := m.store.FindByKey(ctx, ownerID, column, key)
	if err != nil {
		return MergeResult{}, storeError("find", err)
	}

	now := m.now().UTC()
	title := displayTitle(finalType, code, meta)

	if existing != nil {
		existing.Quantity++
		refresh(existing, finalType, title, meta)
		existing.LastScannedAt = now
		existing.UpdatedAt = now

		if err := m.store.Update(ctx, existing); err != nil {
			return MergeResult{}, storeError("update", err)
		}
		slog.Info("Inventory item incremented", "owner", ownerID, "id", existing.ID, "title", existing.Title, "quantity", existing.Quantity)
		return MergeResult{ID: existing.ID, Quantity: existing.Quantity, Record: *existing}, nil
	}

	rec := &Record{
		ID:            m.newID(),
		OwnerID:       ownerID,
		Quantity:      1,
		Status:        StatusDraft,
		Source:        m.source,
		LastScannedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if column == KeyBarcode {
		rec.Barcode = key
	} else {
		rec.CanonicalCode = key
	}
	refresh(rec, finalType, title, meta)

	if err := m.store.Insert(ctx, rec); err != nil {
		return MergeResult{}, storeError("insert", err)
	}
	slog.Info("Inventory item created", "owner", ownerID, "id", rec.ID, "title", rec.Title, "type", rec.Type)

	m.submitBackfill(*rec, pricing.ItemFromMetadata(code, meta))

	return MergeResult{ID: rec.ID, Created: true, Quantity: 1, Record: *rec}, nil
}

func (m *Merger) submitBackfill(rec Record, item pricing.Item) {
	if m.pricer == nil || m.tasks == nil {
		return
	}
	if item.Title == "" {
		item.Title = rec.Title
	}
	if item.Type == "" {
		item.Type = rec.Type
	}

	err := m.tasks.Submit("price-backfill:"+rec.ID, func(ctx context.Context) error {
		return m.Backfill(ctx, rec.ID, item)
	})
	if err != nil {
		slog.Warn("Price backfill not scheduled", "id", rec.ID, "error", err)
	}
}

// Backfill prices item and writes the result onto record id. The price is
// written even when it is a fallback; the quote's market error, if any, is
// returned afterwards so it can be reported.
func (m *Merger) Backfill(ctx context.Context, id string, item pricing.Item) error {
	if m.pricer == nil {
		return nil
	}

	quote := m.pricer.Price(ctx, item, m.strategy, m.cfg)
	if err := m.store.SetSuggestedPrice(ctx, id, quote.Price); err != nil {
		return storeError("set price", err)
	}
	slog.Debug("Suggested price stored", "id", id, "price", quote.Price, "source", quote.Source, "notes", quote.Notes)

	if quote.Err != nil {
		return fmt.Errorf("price backfill for %s used %s: %w", id, quote.Source, quote.Err)
	}
	return nil
}

func resolveType(preference, metaType product.ItemType) product.ItemType {
	if t := product.ParseItemType(string(preference)); t != "" {
		return t
	}
	if t := product.ParseItemType(string(metaType)); t != "" {
		return t
	}
	return product.TypeBook
}

func displayTitle(itemType product.ItemType, code barcode.Code, meta *product.ItemMetadata) string {
	title := strings.TrimSpace(meta.Title)
	if itemType == product.TypeMagazine {
		if composed := MagazineTitle(meta); composed != "" {
			title = composed
		}
	}
	if title == "" {
		title = code.Digits
	}
	return title
}

// refresh overwrites record metadata with the non-empty values in meta.
func refresh(rec *Record, itemType product.ItemType, title string, meta *product.ItemMetadata) {
	rec.Type = itemType
	if title != "" && (meta.Title != "" || rec.Title == "") {
		rec.Title = title
	}
	if meta.Publisher != "" {
		rec.Publisher = meta.Publisher
	}
	if len(meta.Authors) > 0 {
		rec.Authors = append([]string(nil), meta.Authors...)
	}
	year := meta.Year
	if year == 0 && itemType == product.TypeMagazine {
		year = meta.InferredYear
	}
	if year > 0 {
		rec.Year = year
	}
	if meta.Description != "" {
		rec.Description = meta.Description
	}
	if len(meta.Categories) > 0 {
		rec.Categories = append([]string(nil), meta.Categories...)
	}
	if meta.CoverURL != "" {
		rec.CoverURL = meta.CoverURL
	}
}

// keyLocks serializes merges of the same key so concurrent scans of one code
// cannot both insert.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
