package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Wait(context.Background()))
	assert.True(t, l.Allow())
	assert.Equal(t, "", l.Name())
}

func TestNewEvery_SpacesRequests(t *testing.T) {
	l := NewEvery("market", time.Hour)
	assert.Equal(t, "market", l.Name())
	assert.True(t, l.Allow(), "first request uses the burst token")
	assert.False(t, l.Allow(), "second request must wait for the interval")
}

func TestNewEvery_DisabledForZeroInterval(t *testing.T) {
	l := NewEvery("market", 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := NewEvery("slow", time.Hour)
	require.True(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait for slow")
}

func TestNew_BurstEqualsRate(t *testing.T) {
	l := New("isbndb", 3)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestNew_NonPositiveRateUnlimited(t *testing.T) {
	l := New("market", 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
	require.NoError(t, l.Wait(context.Background()))
}
