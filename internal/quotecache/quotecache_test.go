package quotecache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/pricing/stats"
	"github.com/lepinkainen/shelfscan/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func payload(price string) Payload {
	p := decimal.RequireFromString(price)
	return Payload{
		Price:        p,
		Summary:      stats.Summarize([]decimal.Decimal{p}),
		ListingCount: 1,
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "quote:the hobbit|limit=50,used", Key("The Hobbit!", "Used", "limit=50"))
	assert.Equal(t, Key("the   HOBBIT", "limit=50", "used"), Key(" The Hobbit. ", "used", "USED", "limit=50"))
	assert.Equal(t, "quote:9780143127796|", Key("978-0-14-312779-6"))
	assert.NotEqual(t, Key("hobbit", "new"), Key("hobbit", "used"))
}

func TestGetOrFetch_HitWithinTTL(t *testing.T) {
	clock := newClock()
	c := New(nil, WithClock(clock.Now))
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (Payload, error) {
		calls++
		return payload("12.50"), nil
	}

	got, hit, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "12.5", got.Price.String())

	clock.Advance(DefaultTTL - time.Second)
	got, hit, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "12.5", got.Price.String())
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_ExpiresAtTTL(t *testing.T) {
	clock := newClock()
	c := New(nil, WithClock(clock.Now), WithTTL(time.Hour))
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (Payload, error) {
		calls++
		return payload("5"), nil
	}

	_, _, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, hit, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_ErrorNotCached(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	boom := errors.New("market down")

	_, _, err := c.GetOrFetch(ctx, "k", func(context.Context) (Payload, error) {
		return Payload{}, boom
	})
	require.ErrorIs(t, err, boom)

	var calls int
	_, hit, err := c.GetOrFetch(ctx, "k", func(context.Context) (Payload, error) {
		calls++
		return payload("1"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_SingleFlight(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (Payload, error) {
		calls.Add(1)
		<-release
		return payload("9.99"), nil
	}

	var wg sync.WaitGroup
	results := make([]Payload, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, err := c.GetOrFetch(ctx, "same", fetch)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, p := range results {
		assert.Equal(t, "9.99", p.Price.String())
	}
}

func TestGetOrFetch_SharedFetchSurvivesCallerCancel(t *testing.T) {
	c := New(nil)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (Payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return Payload{}, err
		}
		return payload("12.50"), nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrFetch(firstCtx, "shared", fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		p   Payload
		err error
	}
	second := make(chan result, 1)
	go func() {
		p, _, err := c.GetOrFetch(context.Background(), "shared", fetch)
		second <- result{p, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "12.5", got.p.Price.String())
	assert.Equal(t, int32(1), calls.Load())
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("backend offline")
}

func (failingBackend) Set(context.Context, string, Entry, time.Duration) error {
	return errors.New("backend offline")
}

func TestGetOrFetch_BackendFailureDegrades(t *testing.T) {
	c := New(failingBackend{})

	got, hit, err := c.GetOrFetch(context.Background(), "k", func(context.Context) (Payload, error) {
		return payload("3"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "3", got.Price.String())
}

func TestGetOrFetch_NilCache(t *testing.T) {
	var c *Cache
	got, hit, err := c.GetOrFetch(context.Background(), "k", func(context.Context) (Payload, error) {
		return payload("4"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "4", got.Price.String())
}

func TestMemoryBackend_Prune(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Set(ctx, "old", Entry{CreatedAt: now}, time.Minute))
	require.NoError(t, m.Set(ctx, "new", Entry{CreatedAt: now}, time.Hour))

	assert.Equal(t, 1, m.Prune(now.Add(time.Minute)))
	assert.Equal(t, 1, m.Size())
}

func TestSQLiteBackend(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db, err := cache.NewCacheDB(filepath.Join(env.RootDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := newClock()
	c := New(NewSQLiteBackend(db), WithClock(clock.Now))
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (Payload, error) {
		calls++
		return payload("7.25"), nil
	}

	_, _, err = c.GetOrFetch(ctx, Key("Dune", "used"), fetch)
	require.NoError(t, err)

	got, hit, err := c.GetOrFetch(ctx, Key("dune", "USED"), fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "7.25", got.Price.String())
	assert.Equal(t, 1, got.Summary.Count)
	assert.Equal(t, 1, calls)

	clock.Advance(DefaultTTL)
	_, hit, err = c.GetOrFetch(ctx, Key("dune", "used"), fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}
