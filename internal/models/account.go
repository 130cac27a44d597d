package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyResetHour is the UTC hour at which per-day ad counters roll over.
const DailyResetHour = 17

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`

	Balance       decimal.Decimal `json:"balance"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`

	AdsWatched    int        `json:"adsWatched"`
	LastWatchTime *time.Time `json:"lastWatchTime,omitempty"`
	LastResetDate *time.Time `json:"lastResetDate,omitempty"`
	// LastActiveAt is the last time the account earned anything.
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResetBoundary returns the most recent daily reset instant at or before now.
func ResetBoundary(now time.Time) time.Time {
	now = now.UTC()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), DailyResetHour, 0, 0, 0, time.UTC)
	if now.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

func (a *Account) NeedsDailyReset(now time.Time) bool {
	if a.LastResetDate == nil {
		return true
	}
	return a.LastResetDate.Before(ResetBoundary(now))
}

// ApplyDailyReset zeroes the ad counter when a reset boundary has passed.
// It reports whether the account changed.
func (a *Account) ApplyDailyReset(now time.Time) bool {
	if !a.NeedsDailyReset(now) {
		return false
	}
	a.AdsWatched = 0
	t := now.UTC()
	a.LastResetDate = &t
	return true
}

func (a *Account) Clone() *Account {
	c := *a
	if a.LastWatchTime != nil {
		t := *a.LastWatchTime
		c.LastWatchTime = &t
	}
	if a.LastResetDate != nil {
		t := *a.LastResetDate
		c.LastResetDate = &t
	}
	if a.LastActiveAt != nil {
		t := *a.LastActiveAt
		c.LastActiveAt = &t
	}
	return &c
}

type CreateAccountRequest struct {
	ID       string `json:"id" binding:"required"`
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type AccountOrder string

const (
	AccountOrderNewest   AccountOrder = "newest"
	AccountOrderEarnings AccountOrder = "earnings"
)

type AccountFilter struct {
	// ActiveSince keeps accounts whose LastActiveAt is at or after it.
	ActiveSince *time.Time
	OrderBy     AccountOrder
	Limit       int
}

// LedgerStats aggregates every account and the withdrawal side of the
// ledger. AdsWatched only counts counters that belong to the current day.
type LedgerStats struct {
	TotalUsers         int64           `json:"totalUsers"`
	TotalBalance       decimal.Decimal `json:"totalBalance"`
	TotalEarnings      decimal.Decimal `json:"totalEarnings"`
	TotalAdsWatched    int64           `json:"totalAdsWatched"`
	NewUsersLast24h    int64           `json:"newUsersLast24h"`
	TotalWithdrawals   decimal.Decimal `json:"totalWithdrawals"`
	PendingWithdrawals int64           `json:"pendingWithdrawals"`
}
