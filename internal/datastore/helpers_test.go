package datastore

import (
	"testing"

	"github.com/lepinkainen/shelfscan/internal/barcode"
)

func barcodeOf(t *testing.T, raw string) barcode.Code {
	t.Helper()
	code := barcode.Normalize(raw)
	if !code.Valid() {
		t.Fatalf("test code %q is not valid", raw)
	}
	return code
}
