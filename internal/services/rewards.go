package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/metrics"
	"adearn-backend/internal/models"
)

type AdType string

const (
	AdTypeAuto   AdType = "auto"
	AdTypeManual AdType = "manual"

	AdCooldown = 15 * time.Second
)

var adRewards = map[AdType]decimal.Decimal{
	AdTypeAuto:   decimal.RequireFromString("0.001"),
	AdTypeManual: decimal.RequireFromString("0.002"),
}

func RewardForAd(adType AdType) (decimal.Decimal, bool) {
	r, ok := adRewards[adType]
	return r, ok
}

type AdRewardResult struct {
	Balance    decimal.Decimal `json:"balance"`
	Reward     decimal.Decimal `json:"reward"`
	AdsWatched int             `json:"adsWatched"`
}

// AccountStatus is an account as of now: the ad counter reflects any daily
// reset that has passed and TimeRemaining is the cooldown left in seconds.
type AccountStatus struct {
	*models.Account
	TimeRemaining int `json:"timeRemaining"`
}

// cooldownRemaining returns whole seconds until the next ad is allowed.
func cooldownRemaining(a *models.Account, now time.Time) int {
	if a.LastWatchTime == nil {
		return 0
	}
	elapsed := now.Sub(*a.LastWatchTime)
	if elapsed >= AdCooldown {
		return 0
	}
	return int(math.Ceil((AdCooldown - elapsed).Seconds()))
}

type AdRewardService struct {
	store       Store
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	log         *logrus.Entry
	dailyCap    int
	now         func() time.Time
}

// NewAdRewardService builds the ad reward path. A dailyCap of 0 disables the
// per-day limit.
func NewAdRewardService(store Store, broadcaster Broadcaster, m *metrics.Metrics, log *logrus.Entry, dailyCap int) *AdRewardService {
	return &AdRewardService{
		store:       store,
		broadcaster: broadcasterOrNop(broadcaster),
		metrics:     m,
		log:         log,
		dailyCap:    dailyCap,
		now:         time.Now,
	}
}

func (s *AdRewardService) WatchAd(ctx context.Context, accountID string, adType AdType) (*AdRewardResult, error) {
	reward, ok := RewardForAd(adType)
	if !ok {
		return nil, ErrInvalidAdType
	}

	now := s.now().UTC()
	account, err := s.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		a := tx.Account()
		a.ApplyDailyReset(now)

		if wait := cooldownRemaining(a, now); wait > 0 {
			return ErrTooSoon.
				Detail(fmt.Sprintf("Please wait %d seconds before watching another ad", wait)).
				After(time.Duration(wait) * time.Second)
		}

		if s.dailyCap > 0 && a.AdsWatched >= s.dailyCap {
			next := models.ResetBoundary(now).Add(24 * time.Hour)
			return ErrDailyCapReached.After(next.Sub(now))
		}

		applyCredit(tx, reward, now, fmt.Sprintf("Reward for watching %s ad", adType), "")
		a.AdsWatched++
		a.LastWatchTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RewardsIssued.WithLabelValues("ad").Inc()
	s.metrics.RewardAmount.WithLabelValues("ad").Add(reward.InexactFloat64())
	s.broadcaster.BroadcastBalance(account)

	s.log.WithFields(logrus.Fields{
		"account_id":  accountID,
		"ad_type":     adType,
		"reward":      reward.String(),
		"ads_watched": account.AdsWatched,
	}).Debug("Ad reward issued")

	return &AdRewardResult{
		Balance:    account.Balance,
		Reward:     reward,
		AdsWatched: account.AdsWatched,
	}, nil
}

// Status reads an account without changing it.
func (s *AdRewardService) Status(ctx context.Context, accountID string) (*AccountStatus, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account.ApplyDailyReset(now)
	return &AccountStatus{Account: account, TimeRemaining: cooldownRemaining(account, now)}, nil
}
