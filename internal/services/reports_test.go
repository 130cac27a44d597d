package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adearn-backend/internal/logger"
	"adearn-backend/internal/metrics"
	"adearn-backend/internal/models"
)

func earnerIDs(board *Leaderboard) []string {
	ids := make([]string, 0, len(board.Earners))
	for _, e := range board.Earners {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestReports_TopEarnersTimeframes(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	for _, id := range []string{"alice", "bob", "carol"} {
		seedAccount(t, store, id, "0", clock.Now())
	}
	seedAccount(t, store, "dave", "9", clock.Now())

	ledger := NewLedger(store, nil, logger.Discard())
	ledger.now = clock.Now
	rewards := NewAdRewardService(store, nil, metrics.NewNop(), logger.Discard(), 0)
	rewards.now = clock.Now
	reports := NewReportService(store)
	reports.now = clock.Now

	_, _, err := ledger.Credit(ctx, "carol", dec("3"), "bonus")
	require.NoError(t, err)

	clock.Advance(36 * 24 * time.Hour) // 2024-02-25 10:00
	_, _, err = ledger.Credit(ctx, "bob", dec("2"), "bonus")
	require.NoError(t, err)

	clock.Advance(119 * time.Hour) // 2024-03-01 09:00
	_, err = rewards.WatchAd(ctx, "alice", AdTypeAuto)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	board, err := reports.TopEarners(ctx, TimeframeToday, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, earnerIDs(board))
	assert.Equal(t, 1, board.Earners[0].Rank)
	assert.Equal(t, 1, board.Earners[0].AdsWatched)

	board, err = reports.TopEarners(ctx, TimeframeWeek, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, earnerIDs(board))
	assert.Equal(t, 2, board.Earners[1].Rank)
	assertDecimal(t, "2.001", board.Stats.TotalEarnings)
	assert.Equal(t, int64(1), board.Stats.TotalAds)
	assertDecimal(t, "1.0005", board.Stats.AvgEarnings)

	board, err = reports.TopEarners(ctx, TimeframeMonth, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, earnerIDs(board))

	board, err = reports.TopEarners(ctx, TimeframeAll, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "carol"}, earnerIDs(board))
	assert.Equal(t, TimeframeAll, board.Timeframe)

	board, err = reports.TopEarners(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, board.Earners, 4)

	// After the 17:00 reset alice drops out of today and her counter reads zero.
	clock.Advance(8 * time.Hour)
	board, err = reports.TopEarners(ctx, TimeframeToday, 0)
	require.NoError(t, err)
	assert.Empty(t, board.Earners)
	assert.True(t, board.Stats.AvgEarnings.IsZero())

	board, err = reports.TopEarners(ctx, TimeframeWeek, 0)
	require.NoError(t, err)
	require.Len(t, board.Earners, 2)
	assert.Equal(t, 0, board.Earners[1].AdsWatched)

	_, err = reports.TopEarners(ctx, Timeframe("year"), 0)
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestReports_Overview(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	seedAccount(t, store, "old", "5", clock.Now().Add(-48*time.Hour))
	seedAccount(t, store, "new-1", "1", clock.Now().Add(-2*time.Hour))
	seedAccount(t, store, "new-2", "0", clock.Now().Add(-time.Hour))

	setAds := func(id string, n int) {
		_, err := store.UpdateAccount(ctx, id, func(tx AccountTx) error {
			tx.Account().AdsWatched = n
			return nil
		})
		require.NoError(t, err)
	}
	setAds("old", 4) // counter from a previous day
	setAds("new-1", 3)

	_, err := store.UpdateAccount(ctx, "old", func(tx AccountTx) error {
		if _, err := applyDebit(tx, dec("1"), models.TransactionStatusCompleted, clock.Now(), "paid", ""); err != nil {
			return err
		}
		_, err := applyDebit(tx, dec("0.5"), models.TransactionStatusPending, clock.Now(), "queued", "")
		return err
	})
	require.NoError(t, err)

	reports := NewReportService(store)
	reports.now = clock.Now

	overview, err := reports.Overview(ctx, 2)
	require.NoError(t, err)
	require.Len(t, overview.Users, 2)
	assert.Equal(t, "new-2", overview.Users[0].ID)
	assert.Equal(t, "new-1", overview.Users[1].ID)

	stats := overview.Stats
	assert.Equal(t, int64(3), stats.TotalUsers)
	assertDecimal(t, "4.5", stats.TotalBalance)
	assertDecimal(t, "6", stats.TotalEarnings)
	assert.Equal(t, int64(3), stats.TotalAdsWatched)
	assert.Equal(t, int64(2), stats.NewUsersLast24h)
	assertDecimal(t, "1", stats.TotalWithdrawals)
	assert.Equal(t, int64(1), stats.PendingWithdrawals)

	old, err := store.GetAccount(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 4, old.AdsWatched, "reports must not write")
}
