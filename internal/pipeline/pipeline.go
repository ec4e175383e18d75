// Package pipeline resolves a canonical code to catalog metadata and merges it
// into the owner's inventory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/lepinkainen/shelfscan/internal/lookup"
)

// ErrLookupNotFound means the code is valid but no catalog source knows it.
var ErrLookupNotFound = errors.New("no catalog match")

// Result is the outcome of processing one code.
type Result struct {
	Code     barcode.Code          `json:"code"`
	Metadata *product.ItemMetadata `json:"metadata"`
	Merge    inventory.MergeResult `json:"merge"`
}

// Pipeline runs lookup then merge.
type Pipeline struct {
	lookup lookup.Client
	merger *inventory.Merger
}

// New creates a Pipeline.
func New(client lookup.Client, merger *inventory.Merger) *Pipeline {
	return &Pipeline{lookup: client, merger: merger}
}

// Process looks code up and merges it for ownerID. The owner is checked before
// any lookup is made.
func (p *Pipeline) Process(ctx context.Context, ownerID string, code barcode.Code, typePreference product.ItemType) (Result, error) {
	res := Result{Code: code}

	if strings.TrimSpace(ownerID) == "" {
		return res, inventory.ErrUnauthenticated
	}
	if !code.Valid() {
		return res, product.ErrInvalidCode
	}

	meta, err := p.lookup.Lookup(ctx, code)
	if err != nil {
		return res, fmt.Errorf("lookup %s: %w", code, err)
	}
	if meta == nil {
		slog.Info("No catalog match", "code", code.Digits, "kind", code.Kind)
		return res, fmt.Errorf("%s: %w", code, ErrLookupNotFound)
	}
	res.Metadata = meta

	merged, err := p.merger.MergeDetailed(ctx, ownerID, code, meta, typePreference)
	if err != nil {
		return res, err
	}
	res.Merge = merged
	return res, nil
}
