package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/lepinkainen/shelfscan/internal/testutil"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	env := testutil.NewTestEnv(t)
	store, err := OpenSQLStore(context.Background(), "sqlite", env.Path("inventory.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id, owner, code string, scanned time.Time) *inventory.Record {
	return &inventory.Record{
		ID:            id,
		OwnerID:       owner,
		CanonicalCode: code,
		Type:          product.TypeBook,
		Title:         "Example",
		Authors:       []string{"A. Writer", "B. Editor"},
		Publisher:     "Penguin",
		Year:          2015,
		Categories:    []string{"Fiction"},
		Quantity:      1,
		Status:        inventory.StatusDraft,
		Source:        inventory.SourceScan,
		LastScannedAt: scanned,
		CreatedAt:     scanned,
		UpdatedAt:     scanned,
	}
}

func TestSQLStore_InsertFindGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2024, 5, 4, 12, 0, 0, 123, time.UTC)

	rec := sampleRecord("id-1", "owner-1", "9780143127796", now)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	found, err := store.FindByKey(ctx, "owner-1", inventory.KeyCanonicalCode, "9780143127796")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found == nil {
		t.Fatal("expected record, got nil")
	}
	if found.ID != "id-1" || found.Title != "Example" || found.Quantity != 1 {
		t.Errorf("unexpected record: %+v", found)
	}
	if len(found.Authors) != 2 || found.Authors[1] != "B. Editor" {
		t.Errorf("authors not round-tripped: %v", found.Authors)
	}
	if !found.LastScannedAt.Equal(now) {
		t.Errorf("last scanned = %v, want %v", found.LastScannedAt, now)
	}
	if found.Barcode != "" || found.SuggestedPrice != nil {
		t.Errorf("expected NULL barcode and price, got %q %v", found.Barcode, found.SuggestedPrice)
	}

	missing, err := store.FindByKey(ctx, "owner-2", inventory.KeyCanonicalCode, "9780143127796")
	if err != nil || missing != nil {
		t.Errorf("expected no record for another owner, got %v, %v", missing, err)
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_FindByBarcode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := sampleRecord("mag-1", "o", "", time.Now())
	rec.Type = product.TypeMagazine
	rec.Barcode = "977123456700307"
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	found, err := store.FindByKey(ctx, "o", inventory.KeyBarcode, "977123456700307")
	if err != nil || found == nil {
		t.Fatalf("expected magazine, got %v, %v", found, err)
	}
	if found.CanonicalCode != "" {
		t.Errorf("canonical code should be NULL, got %q", found.CanonicalCode)
	}

	if _, err := store.FindByKey(ctx, "o", "title", "x"); err == nil {
		t.Error("expected error for unknown key column")
	}
}

func TestSQLStore_UniquePerOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	if err := store.Insert(ctx, sampleRecord("a", "o", "9780143127796", now)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.Insert(ctx, sampleRecord("b", "o", "9780143127796", now)); err == nil {
		t.Error("expected unique violation for the same owner and code")
	}
	if err := store.Insert(ctx, sampleRecord("c", "other", "9780143127796", now)); err != nil {
		t.Errorf("other owners may hold the same code: %v", err)
	}
}

func TestSQLStore_UpdateAndPrice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	rec := sampleRecord("id-1", "o", "9780143127796", now)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec.Quantity = 2
	rec.Publisher = "Broadway"
	rec.Description = "Updated"
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := store.SetSuggestedPrice(ctx, "id-1", decimal.RequireFromString("13.99")); err != nil {
		t.Fatalf("set price failed: %v", err)
	}

	got, err := store.Get(ctx, "id-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Quantity != 2 || got.Publisher != "Broadway" || got.Description != "Updated" {
		t.Errorf("update not applied: %+v", got)
	}
	if got.SuggestedPrice == nil || got.SuggestedPrice.StringFixed(2) != "13.99" {
		t.Errorf("suggested price = %v, want 13.99", got.SuggestedPrice)
	}

	ghost := sampleRecord("ghost", "o", "9780000000002", now)
	if err := store.Update(ctx, ghost); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing record, got %v", err)
	}
	if err := store.SetSuggestedPrice(ctx, "ghost", decimal.NewFromInt(1)); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("expected ErrNotFound pricing a missing record, got %v", err)
	}
}

func TestSQLStore_ListOrdersByLastScanned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, code := range []string{"9780143127796", "9780306406157", "9780261103344"} {
		rec := sampleRecord(code, "o", code, base.Add(time.Duration(i)*time.Hour))
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, sampleRecord("x", "someone-else", "9780143127796", base)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	records, err := store.List(ctx, "o")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ID != "9780261103344" || records[2].ID != "9780143127796" {
		t.Errorf("unexpected order: %s, %s, %s", records[0].ID, records[1].ID, records[2].ID)
	}
}

func TestSQLStore_WithMerger(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := inventory.NewMerger(store)

	meta := &product.ItemMetadata{Title: "Example", Type: product.TypeBook}
	first, err := m.MergeDetailed(ctx, "o", barcodeOf(t, "9780143127796"), meta, "")
	if err != nil {
		t.Fatalf("first merge failed: %v", err)
	}
	second, err := m.MergeDetailed(ctx, "o", barcodeOf(t, "0143127792"), meta, "")
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if !first.Created || second.Created || second.Quantity != 2 || first.ID != second.ID {
		t.Errorf("unexpected merge results: %+v / %+v", first, second)
	}
}

func TestOpenSQLStore_UnknownDriver(t *testing.T) {
	if _, err := OpenSQLStore(context.Background(), "oracle", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
