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

type clickFixture struct {
	svc    *ClickService
	store  *MemoryStore
	guard  *MemoryGuard
	signer *ClickSigner
	clock  *fakeClock
}

func newClickFixture(t *testing.T) *clickFixture {
	t.Helper()
	clock := newFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	seedAccount(t, store, "user-1", "0", clock.Now())
	seedLink(t, store, "link-1", "0.01", true, clock.Now())

	guard := NewMemoryGuard(time.Minute)
	signer := NewClickSigner("test-secret")
	svc := NewClickService(store, guard, signer, nil, metrics.NewNop(), logger.Discard())
	svc.now = clock.Now
	return &clickFixture{svc: svc, store: store, guard: guard, signer: signer, clock: clock}
}

// claimAfter builds a correctly signed claim whose visit started elapsed ago.
func (f *clickFixture) claimAfter(linkID, userID string, elapsed time.Duration) ClickClaim {
	ts := f.clock.Now().Add(-elapsed).UnixMilli()
	return ClickClaim{
		LinkID:    linkID,
		UserID:    userID,
		Timestamp: ts,
		Signature: f.signer.Sign(linkID, ts),
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	}
}

func TestClickSigner(t *testing.T) {
	signer := NewClickSigner("secret")
	sig := signer.Sign("link-1", 1700000000000)

	assert.Len(t, sig, 64)
	assert.True(t, signer.Verify("link-1", 1700000000000, sig))
	assert.False(t, signer.Verify("link-1", 1700000000001, sig))
	assert.False(t, signer.Verify("link-2", 1700000000000, sig))
	assert.False(t, NewClickSigner("other").Verify("link-1", 1700000000000, sig))
}

func TestClickService_IssueTicket(t *testing.T) {
	f := newClickFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.IssueTicket(ctx, "link-1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UnixMilli(), ticket.Timestamp)
	assert.True(t, f.signer.Verify("link-1", ticket.Timestamp, ticket.Hash))

	_, err = f.svc.IssueTicket(ctx, "missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	seedLink(t, f.store, "link-off", "0.01", false, f.clock.Now())
	_, err = f.svc.IssueTicket(ctx, "link-off")
	assert.ErrorIs(t, err, ErrLinkInactive)
}

func TestClickService_ClaimRewards(t *testing.T) {
	f := newClickFixture(t)
	ctx := context.Background()

	link, err := f.svc.Claim(ctx, f.claimAfter("link-1", "user-1", 30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.TotalClicks)

	account, err := f.store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assertDecimal(t, "0.01", account.Balance)

	history, err := f.store.ListClicks(ctx, models.ClickFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ClickStatusSuccess, history[0].Status)
	assert.Equal(t, "10.0.0.1", history[0].IPAddress)

	txs, err := f.store.ListTransactions(ctx, models.TransactionFilter{AccountID: "user-1"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "link-1", txs[0].Reference)
	assert.Equal(t, 0, f.guard.Len())
}

func TestClickService_TimeWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"TooEarly", 28*time.Second - time.Millisecond, ErrInvalidTimeWindow},
		{"LowerBound", 28 * time.Second, nil},
		{"UpperBound", 35 * time.Second, nil},
		{"TooLate", 35*time.Second + time.Millisecond, ErrInvalidTimeWindow},
		{"FutureTimestamp", -time.Second, ErrInvalidTimeWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newClickFixture(t)
			_, err := f.svc.Claim(context.Background(), f.claimAfter("link-1", "user-1", tt.elapsed))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClickService_Rejections(t *testing.T) {
	t.Run("BadSignatureIsRecorded", func(t *testing.T) {
		f := newClickFixture(t)
		ctx := context.Background()
		claim := f.claimAfter("link-1", "user-1", 30*time.Second)
		claim.Signature = "deadbeef"

		_, err := f.svc.Claim(ctx, claim)
		require.ErrorIs(t, err, ErrInvalidSignature)

		history, err := f.store.ListClicks(ctx, models.ClickFilter{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.ClickStatusFailed, history[0].Status)
		assert.Equal(t, ErrInvalidSignature.Message, history[0].ErrorMessage)
		assert.True(t, history[0].Reward.IsZero())
	})

	t.Run("ReplayIsRejected", func(t *testing.T) {
		f := newClickFixture(t)
		ctx := context.Background()
		claim := f.claimAfter("link-1", "user-1", 30*time.Second)

		_, err := f.svc.Claim(ctx, claim)
		require.NoError(t, err)
		_, err = f.svc.Claim(ctx, claim)
		assert.ErrorIs(t, err, ErrAlreadyRecorded)

		account, err := f.store.GetAccount(ctx, "user-1")
		require.NoError(t, err)
		assertDecimal(t, "0.01", account.Balance)
	})

	t.Run("OneRewardPerDay", func(t *testing.T) {
		f := newClickFixture(t)
		ctx := context.Background()

		_, err := f.svc.Claim(ctx, f.claimAfter("link-1", "user-1", 30*time.Second))
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		_, err = f.svc.Claim(ctx, f.claimAfter("link-1", "user-1", 30*time.Second))
		assert.ErrorIs(t, err, ErrAlreadyRewarded)

		f.clock.Advance(RewardWindow)
		_, err = f.svc.Claim(ctx, f.claimAfter("link-1", "user-1", 30*time.Second))
		require.NoError(t, err)

		account, err := f.store.GetAccount(ctx, "user-1")
		require.NoError(t, err)
		assertDecimal(t, "0.02", account.Balance)
	})

	t.Run("InFlightDuplicate", func(t *testing.T) {
		f := newClickFixture(t)
		claim := f.claimAfter("link-1", "user-1", 30*time.Second)
		ok, err := f.guard.Acquire(context.Background(), claim.guardKey())
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.svc.Claim(context.Background(), claim)
		assert.ErrorIs(t, err, ErrAlreadyProcessing)
	})

	t.Run("InactiveLink", func(t *testing.T) {
		f := newClickFixture(t)
		seedLink(t, f.store, "link-off", "0.01", false, f.clock.Now())

		_, err := f.svc.Claim(context.Background(), f.claimAfter("link-off", "user-1", 30*time.Second))
		assert.ErrorIs(t, err, ErrLinkInactive)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		f := newClickFixture(t)

		_, err := f.svc.Claim(context.Background(), f.claimAfter("link-1", "nobody", 30*time.Second))
		require.ErrorIs(t, err, ErrClickAccountNotFound)
		assert.Equal(t, 400, AsError(err).Status)
	})
}
