package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adearn-backend/internal/logger"
	"adearn-backend/internal/metrics"
)

func newAdRewardFixture(t *testing.T, dailyCap int) (*AdRewardService, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	seedAccount(t, store, "user-1", "0", clock.Now())

	svc := NewAdRewardService(store, nil, metrics.NewNop(), logger.Discard(), dailyCap)
	svc.now = clock.Now
	return svc, store, clock
}

func TestAdReward_Amounts(t *testing.T) {
	svc, _, clock := newAdRewardFixture(t, 0)
	ctx := context.Background()

	result, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.NoError(t, err)
	assertDecimal(t, "0.001", result.Reward)
	assertDecimal(t, "0.001", result.Balance)
	assert.Equal(t, 1, result.AdsWatched)

	clock.Advance(AdCooldown)
	result, err = svc.WatchAd(ctx, "user-1", AdTypeManual)
	require.NoError(t, err)
	assertDecimal(t, "0.002", result.Reward)
	assertDecimal(t, "0.003", result.Balance)

	_, err = svc.WatchAd(ctx, "user-1", AdType("banner"))
	assert.ErrorIs(t, err, ErrInvalidAdType)

	_, err = svc.WatchAd(ctx, "ghost", AdTypeAuto)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAdReward_Cooldown(t *testing.T) {
	svc, store, clock := newAdRewardFixture(t, 0)
	ctx := context.Background()

	_, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.NoError(t, err)

	clock.Advance(AdCooldown - time.Millisecond)
	_, err = svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.ErrorIs(t, err, ErrTooSoon)
	assert.Equal(t, "Please wait 1 seconds before watching another ad", err.Error())
	assert.True(t, AsError(err).Retryable())
	assert.Equal(t, time.Second, AsError(err).RetryAfter)

	account, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assertDecimal(t, "0.001", account.Balance)
	assert.Equal(t, 1, account.AdsWatched)

	clock.Advance(time.Millisecond)
	result, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AdsWatched)
}

func TestAdReward_DailyCapAndReset(t *testing.T) {
	svc, _, clock := newAdRewardFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
		require.NoError(t, err)
		clock.Advance(AdCooldown)
	}

	_, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.ErrorIs(t, err, ErrDailyCapReached)
	assert.Equal(t, 7*time.Hour-30*time.Second, AsError(err).RetryAfter)

	// Past 17:00 UTC the counter starts over.
	clock.Advance(7 * time.Hour)
	result, err := svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AdsWatched)
	assertDecimal(t, "0.003", result.Balance)
}

func TestAdReward_Status(t *testing.T) {
	svc, store, clock := newAdRewardFixture(t, 0)
	ctx := context.Background()

	status, err := svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.TimeRemaining)

	_, err = svc.WatchAd(ctx, "user-1", AdTypeAuto)
	require.NoError(t, err)

	clock.Advance(4*time.Second + 500*time.Millisecond)
	status, err = svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 11, status.TimeRemaining)
	assert.Equal(t, 1, status.AdsWatched)

	// Past 17:00 UTC the counter reads as zero before the next ad is watched.
	clock.Advance(7 * time.Hour)
	status, err = svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.TimeRemaining)
	assert.Equal(t, 0, status.AdsWatched)

	stored, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AdsWatched, "reading status must not write")

	_, err = svc.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
