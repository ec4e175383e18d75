package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const mockMaxResults = 20

// MockSource returns synthetic listings derived from a hash of the query, so
// the same query always yields the same prices. Fixtures override the
// synthetic data per query text.
type MockSource struct {
	mu       sync.Mutex
	fixtures map[string][]Listing
	err      error
	calls    int
}

// Compile-time check that MockSource implements Source.
var _ Source = (*MockSource)(nil)

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{fixtures: make(map[string][]Listing)}
}

// SetListings fixes the result for a query text. A nil slice means "no
// results".
func (m *MockSource) SetListings(text string, listings []Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixtures[fixtureKey(text)] = listings
}

// SetError makes every subsequent search fail with err.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many searches were run.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSource) SearchActive(ctx context.Context, q Query) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	err := m.err
	fixture, ok := m.fixtures[fixtureKey(q.Text)]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return limit(fixture, q.Limit), nil
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	return synthesize(q), nil
}

func fixtureKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func limit(listings []Listing, n int) []Listing {
	if n > 0 && len(listings) > n {
		return listings[:n]
	}
	return listings
}

func synthesize(q Query) []Listing {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fixtureKey(q.Text)))
	sum := h.Sum32()

	n := mockMaxResults
	if q.Limit > 0 && q.Limit < n {
		n = q.Limit
	}

	base := decimal.NewFromInt(400 + int64(sum%2000)).Shift(-2)
	step := decimal.NewFromInt(25 * int64(sum%7+1)).Shift(-2)
	shipping := decimal.RequireFromString("3.99")

	out := make([]Listing, 0, n)
	for i := 0; i < n; i++ {
		l := Listing{
			ID:        fmt.Sprintf("mock-%08x-%02d", sum, i),
			Title:     q.Text,
			Price:     base.Add(step.Mul(decimal.NewFromInt(int64(i)))),
			Condition: q.Condition,
		}
		if i%2 == 1 {
			s := shipping
			l.ShippingCost = &s
		}
		out = append(out, l)
	}
	return out
}
