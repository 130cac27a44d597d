package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"adearn-backend/internal/models"
)

type Timeframe string

const (
	TimeframeToday Timeframe = "today"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeAll   Timeframe = "all"
)

// DefaultLeaderboardSize is used when no limit is requested.
const DefaultLeaderboardSize = 10

// Since returns the start of the timeframe, or nil for all time. Today starts
// at the most recent daily reset.
func (tf Timeframe) Since(now time.Time) (*time.Time, error) {
	var since time.Time
	switch tf {
	case TimeframeToday:
		since = models.ResetBoundary(now)
	case TimeframeWeek:
		since = now.Add(-7 * 24 * time.Hour)
	case TimeframeMonth:
		since = now.AddDate(0, -1, 0)
	case TimeframeAll, "":
		return nil, nil
	default:
		return nil, ErrInvalidTimeframe
	}
	return &since, nil
}

type TopEarner struct {
	Rank          int             `json:"rank"`
	ID            string          `json:"id"`
	Username      string          `json:"username,omitempty"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	AdsWatched    int             `json:"adsWatched"`
	LastActiveAt  *time.Time      `json:"lastActiveAt,omitempty"`
}

type EarnerStats struct {
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	TotalAds      int64           `json:"totalAds"`
	AvgEarnings   decimal.Decimal `json:"avgEarnings"`
}

type Leaderboard struct {
	Timeframe Timeframe   `json:"timeframe"`
	Earners   []TopEarner `json:"earners"`
	Stats     EarnerStats `json:"stats"`
}

type AccountOverview struct {
	Users []*models.Account   `json:"users"`
	Stats *models.LedgerStats `json:"stats"`
}

// ReportService builds the read-only views over the whole ledger.
type ReportService struct {
	store Store
	now   func() time.Time
}

func NewReportService(store Store) *ReportService {
	return &ReportService{store: store, now: time.Now}
}

// Overview lists the newest accounts with totals for the whole ledger.
func (s *ReportService) Overview(ctx context.Context, limit int) (*AccountOverview, error) {
	now := s.now().UTC()

	users, err := s.store.ListAccounts(ctx, models.AccountFilter{OrderBy: models.AccountOrderNewest, Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.ApplyDailyReset(now)
	}

	stats, err := s.store.LedgerStats(ctx, now)
	if err != nil {
		return nil, err
	}
	return &AccountOverview{Users: users, Stats: stats}, nil
}

// TopEarners ranks accounts active within the timeframe by lifetime
// earnings.
func (s *ReportService) TopEarners(ctx context.Context, tf Timeframe, limit int) (*Leaderboard, error) {
	now := s.now().UTC()
	since, err := tf.Since(now)
	if err != nil {
		return nil, err
	}
	if tf == "" {
		tf = TimeframeAll
	}
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardSize
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	accounts, err := s.store.ListAccounts(ctx, models.AccountFilter{
		ActiveSince: since,
		OrderBy:     models.AccountOrderEarnings,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{Timeframe: tf, Earners: make([]TopEarner, 0, len(accounts))}
	for i, a := range accounts {
		a.ApplyDailyReset(now)
		board.Earners = append(board.Earners, TopEarner{
			Rank:          i + 1,
			ID:            a.ID,
			Username:      a.Username,
			TotalEarnings: a.TotalEarnings,
			AdsWatched:    a.AdsWatched,
			LastActiveAt:  a.LastActiveAt,
		})
		board.Stats.TotalEarnings = board.Stats.TotalEarnings.Add(a.TotalEarnings)
		board.Stats.TotalAds += int64(a.AdsWatched)
	}
	if n := len(board.Earners); n > 0 {
		board.Stats.AvgEarnings = board.Stats.TotalEarnings.DivRound(decimal.NewFromInt(int64(n)), models.AmountScale)
	}
	return board, nil
}
