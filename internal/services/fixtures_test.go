package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"adearn-backend/internal/config"
	"adearn-backend/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	calls    int
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{balances: make(map[string]decimal.Decimal)}
}

func (b *recordingBroadcaster) BroadcastBalance(a *models.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[a.ID] = a.Balance
	b.calls++
}

func (b *recordingBroadcaster) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedAccount(t *testing.T, store Store, id string, balance string, now time.Time) {
	t.Helper()
	require.NoError(t, store.CreateAccount(context.Background(), &models.Account{
		ID:            id,
		Balance:       dec(balance),
		TotalEarnings: dec(balance),
		LastResetDate: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func seedLink(t *testing.T, store Store, id string, reward string, active bool, now time.Time) {
	t.Helper()
	require.NoError(t, store.CreateLink(context.Background(), &models.DirectLink{
		ID:             id,
		Title:          "Partner " + id,
		URL:            "https://example.com/" + id,
		Icon:           models.DefaultLinkIcon,
		Category:       models.LinkCategoryGeneral,
		Position:       1,
		IsActive:       active,
		RewardPerClick: dec(reward),
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func testLimits() config.WithdrawalLimits {
	return config.WithdrawalLimits{
		MinCrypto: dec("0.5"),
		MaxCrypto: dec("50"),
		MinLocal:  dec("50"),
		MaxLocal:  dec("5000"),
		LocalRate: dec("100"),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "expected %s, got %s", want, got.String())
}
