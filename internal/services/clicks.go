package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/metrics"
	"adearn-backend/internal/models"
)

const (
	ClickMinDelay = 28 * time.Second
	ClickMaxDelay = 35 * time.Second
	RewardWindow  = 24 * time.Hour
)

// ClickSigner produces and checks the keyed hash that binds a link id to
// the moment a visit started.
type ClickSigner struct {
	secret []byte
}

func NewClickSigner(secret string) *ClickSigner {
	return &ClickSigner{secret: []byte(secret)}
}

func (s *ClickSigner) Sign(linkID string, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fmt.Sprintf("%s_%d", linkID, timestamp)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *ClickSigner) Verify(linkID string, timestamp int64, signature string) bool {
	expected := s.Sign(linkID, timestamp)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

type ClickClaim struct {
	LinkID    string
	UserID    string
	Timestamp int64
	Signature string
	IPAddress string
	UserAgent string
}

func (c ClickClaim) guardKey() string {
	return fmt.Sprintf("%s_%s_%d", c.LinkID, c.UserID, c.Timestamp)
}

type ClickService struct {
	store       Store
	guard       ProcessingGuard
	signer      *ClickSigner
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	log         *logrus.Entry
	now         func() time.Time
}

func NewClickService(store Store, guard ProcessingGuard, signer *ClickSigner, broadcaster Broadcaster, m *metrics.Metrics, log *logrus.Entry) *ClickService {
	return &ClickService{
		store:       store,
		guard:       guard,
		signer:      signer,
		broadcaster: broadcasterOrNop(broadcaster),
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// IssueTicket starts a visit: the returned timestamp and hash are what the
// client submits once the visit has lasted long enough.
func (s *ClickService) IssueTicket(ctx context.Context, linkID string) (*models.ClickTicket, error) {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if !link.IsActive {
		return nil, ErrLinkInactive
	}

	ts := s.now().UnixMilli()
	return &models.ClickTicket{
		ID:        link.ID,
		Timestamp: ts,
		Hash:      s.signer.Sign(link.ID, ts),
	}, nil
}

// Claim verifies a click and credits the link reward. Every rejection is
// also written to click history.
func (s *ClickService) Claim(ctx context.Context, claim ClickClaim) (*models.DirectLink, error) {
	link, err := s.claim(ctx, claim)
	if err != nil {
		s.recordFailure(ctx, claim, err)
		return nil, err
	}
	return link, nil
}

func (s *ClickService) claim(ctx context.Context, c ClickClaim) (*models.DirectLink, error) {
	if !s.signer.Verify(c.LinkID, c.Timestamp, c.Signature) {
		return nil, ErrInvalidSignature
	}

	now := s.now().UTC()
	elapsed := now.UnixMilli() - c.Timestamp
	if elapsed < ClickMinDelay.Milliseconds() || elapsed > ClickMaxDelay.Milliseconds() {
		return nil, ErrInvalidTimeWindow
	}

	key := c.guardKey()
	acquired, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyProcessing
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to release click guard")
		}
	}()

	exists, err := s.store.ClickExists(ctx, c.UserID, c.LinkID, c.Timestamp)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyRecorded
	}

	link, err := s.store.GetLink(ctx, c.LinkID)
	if err != nil {
		return nil, err
	}
	if !link.IsActive {
		return nil, ErrLinkInactive
	}

	if _, err := s.store.GetAccount(ctx, c.UserID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrClickAccountNotFound
		}
		return nil, err
	}

	reward := link.RewardPerClick
	account, err := s.store.UpdateAccount(ctx, c.UserID, func(tx AccountTx) error {
		recent, err := tx.HasRecentClickReward(ctx, link.ID, now.Add(-RewardWindow))
		if err != nil {
			return err
		}
		if recent {
			return ErrAlreadyRewarded
		}

		if reward.IsPositive() {
			applyCredit(tx, reward, now, "Reward for visiting "+link.Title, link.ID)
		}
		tx.PutClick(&models.ClickRecord{
			ID:              models.GenerateClickID(now),
			UserID:          c.UserID,
			LinkID:          link.ID,
			ClientTimestamp: c.Timestamp,
			Reward:          reward,
			Status:          models.ClickStatusSuccess,
			IPAddress:       c.IPAddress,
			UserAgent:       c.UserAgent,
			CreatedAt:       now,
		})
		tx.IncrementLinkClicks(link.ID)
		return nil
	})
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrClickAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RewardsIssued.WithLabelValues("click").Inc()
	s.metrics.RewardAmount.WithLabelValues("click").Add(reward.InexactFloat64())
	s.broadcaster.BroadcastBalance(account)

	updated, err := s.store.GetLink(ctx, link.ID)
	if err != nil {
		// Deleted after the reward committed; report what was credited.
		link.TotalClicks++
		return link, nil
	}
	return updated, nil
}

func (s *ClickService) recordFailure(ctx context.Context, c ClickClaim, cause error) {
	e := AsError(cause)
	s.metrics.ClickRejections.WithLabelValues(e.Code).Inc()

	message := e.Message
	if e.Kind == KindInternal {
		message = cause.Error()
		s.log.WithError(cause).WithFields(logrus.Fields{
			"link_id": c.LinkID,
			"user_id": c.UserID,
		}).Error("Click claim failed")
	}

	now := s.now().UTC()
	record := &models.ClickRecord{
		ID:              models.GenerateClickID(now),
		UserID:          c.UserID,
		LinkID:          c.LinkID,
		ClientTimestamp: c.Timestamp,
		Reward:          decimal.Zero,
		Status:          models.ClickStatusFailed,
		ErrorMessage:    message,
		IPAddress:       c.IPAddress,
		UserAgent:       c.UserAgent,
		CreatedAt:       now,
	}

	if err := s.store.SaveClick(context.WithoutCancel(ctx), record); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"link_id": c.LinkID,
			"user_id": c.UserID,
			"reason":  e.Code,
		}).Error("Failed to record click rejection")
	}
}

func (s *ClickService) ListClicks(ctx context.Context, filter models.ClickFilter) ([]*models.ClickRecord, error) {
	return s.store.ListClicks(ctx, filter)
}
