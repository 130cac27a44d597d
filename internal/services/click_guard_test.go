package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	guard := NewMemoryGuard(time.Minute)
	guard.now = clock.Now
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "link_user_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "link_user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Release(ctx, "link_user_1"))
	ok, err = guard.Acquire(ctx, "link_user_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = guard.Acquire(ctx, "link_user_2")
	assert.True(t, ok)
	assert.Equal(t, 2, guard.Len())

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, 2, guard.Sweep())
	assert.Equal(t, 0, guard.Len())
}

func TestMemoryGuard_StaleEntryIsReclaimed(t *testing.T) {
	clock := newFakeClock(time.Now())
	guard := NewMemoryGuard(time.Minute)
	guard.now = clock.Now
	ctx := context.Background()

	ok, _ := guard.Acquire(ctx, "k")
	require.True(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err := guard.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_RunStopsOnCancel(t *testing.T) {
	guard := NewMemoryGuard(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		guard.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemoryRateLimiter(t *testing.T) {
	clock := newFakeClock(time.Now())
	limiter := NewMemoryRateLimiter()
	limiter.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1", "api", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "10.0.0.1", "api", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = limiter.Allow(ctx, "10.0.0.2", "api", 3, time.Minute)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	ok, _ = limiter.Allow(ctx, "10.0.0.1", "api", 3, time.Minute)
	assert.True(t, ok)
}
