package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/config"
	"adearn-backend/internal/metrics"
	"adearn-backend/internal/models"
)

type WithdrawalInput struct {
	AccountID string
	Method    string
	Network   string
	Amount    decimal.Decimal
	Recipient string
}

type CancelResult struct {
	Withdrawal          *models.Withdrawal `json:"withdrawal"`
	RefundedAmount      decimal.Decimal    `json:"refundedAmount"`
	RefundedAmountLocal decimal.Decimal    `json:"refundedAmountLocal"`
	Balance             decimal.Decimal    `json:"balance"`
}

type WithdrawalService struct {
	store          Store
	broadcaster    Broadcaster
	metrics        *metrics.Metrics
	log            *logrus.Entry
	limits         config.WithdrawalLimits
	refundOnReject bool
	now            func() time.Time
}

func NewWithdrawalService(store Store, broadcaster Broadcaster, m *metrics.Metrics, log *logrus.Entry, limits config.WithdrawalLimits, refundOnReject bool) *WithdrawalService {
	return &WithdrawalService{
		store:          store,
		broadcaster:    broadcasterOrNop(broadcaster),
		metrics:        m,
		log:            log,
		limits:         limits,
		refundOnReject: refundOnReject,
		now:            time.Now,
	}
}

// Bounds returns the accepted range for a method class, in its native unit.
func (s *WithdrawalService) Bounds(class MethodClass) (decimal.Decimal, decimal.Decimal) {
	if class == MethodClassCrypto {
		return s.limits.MinCrypto, s.limits.MaxCrypto
	}
	return s.limits.MinLocal, s.limits.MaxLocal
}

func (s *WithdrawalService) LocalAmount(reference decimal.Decimal) decimal.Decimal {
	return models.LocalAmount(reference, s.limits.LocalRate)
}

// LocalAmountScale is the precision of local currency amounts.
const LocalAmountScale = 2

// Create validates the request completely before it touches the balance,
// then debits the account and records a pending request in one unit.
func (s *WithdrawalService) Create(ctx context.Context, in WithdrawalInput) (*models.Withdrawal, error) {
	method, ok := LookupPaymentMethod(in.Method)
	if !ok {
		return nil, ErrUnknownMethod
	}
	places := int32(models.AmountScale)
	if !method.IsCrypto() {
		places = LocalAmountScale
	}
	if err := checkAmount(in.Amount, places); err != nil {
		return nil, err
	}

	lo, hi := s.Bounds(method.Class)
	if in.Amount.LessThan(lo) || in.Amount.GreaterThan(hi) {
		return nil, ErrAmountOutOfRange.Detail(fmt.Sprintf("Amount must be between %s and %s %s",
			lo.String(), hi.String(), method.Currency))
	}

	network, err := method.ValidateRecipient(in.Network, in.Recipient)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	if !method.IsCrypto() {
		amount = models.ReferenceAmount(in.Amount, s.limits.LocalRate)
	}

	now := s.now().UTC()
	withdrawal := &models.Withdrawal{
		ID:             models.GenerateWithdrawalID(now),
		AccountID:      in.AccountID,
		Method:         method.Code,
		Network:        network,
		Amount:         amount,
		OriginalAmount: in.Amount,
		Currency:       method.Currency,
		Recipient:      strings.TrimSpace(in.Recipient),
		Status:         models.WithdrawalStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	account, err := s.store.UpdateAccount(ctx, in.AccountID, func(tx AccountTx) error {
		description := fmt.Sprintf("Withdrawal via %s", method.Name)
		entry, err := applyDebit(tx, amount, models.TransactionStatusPending, now, description, withdrawal.ID)
		if err != nil {
			return err
		}
		if method.IsCrypto() {
			entry.Network = network
			entry.WalletAddress = withdrawal.Recipient
		}

		withdrawal.TransactionID = entry.ID
		tx.PutWithdrawal(withdrawal)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Withdrawals.WithLabelValues("created").Inc()
	s.broadcaster.BroadcastBalance(account)
	s.log.WithFields(logrus.Fields{
		"account_id":    in.AccountID,
		"withdrawal_id": withdrawal.ID,
		"method":        method.Code,
		"amount":        amount.String(),
	}).Info("Withdrawal requested")

	return withdrawal, nil
}

// Cancel refunds a pending request and removes it. A non-empty accountID
// must own the request.
func (s *WithdrawalService) Cancel(ctx context.Context, id, accountID string) (*CancelResult, error) {
	existing, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if accountID != "" && existing.AccountID != accountID {
		return nil, ErrWithdrawalNotFound
	}

	now := s.now().UTC()
	var cancelled *models.Withdrawal
	account, err := s.store.UpdateAccount(ctx, existing.AccountID, func(tx AccountTx) error {
		w, err := tx.Withdrawal(ctx, id)
		if err != nil {
			return err
		}
		if !w.IsPending() {
			return ErrNotPending
		}

		if err := s.failTransaction(ctx, tx, w, now, "Cancelled by user"); err != nil {
			return err
		}
		applyRefund(tx, w.Amount, now)
		tx.DeleteWithdrawal(w.ID)
		cancelled = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Withdrawals.WithLabelValues("cancelled").Inc()
	s.broadcaster.BroadcastBalance(account)
	s.log.WithFields(logrus.Fields{
		"account_id":    account.ID,
		"withdrawal_id": id,
		"refunded":      cancelled.Amount.String(),
	}).Info("Withdrawal cancelled")

	return &CancelResult{
		Withdrawal:          cancelled,
		RefundedAmount:      cancelled.Amount,
		RefundedAmountLocal: s.LocalAmount(cancelled.Amount),
		Balance:             account.Balance,
	}, nil
}

// Resolve settles a pending request. Rejections refund the balance when
// refundOnReject is set; otherwise the debit stands.
func (s *WithdrawalService) Resolve(ctx context.Context, id string, status models.WithdrawalStatus) (*models.Withdrawal, error) {
	if status != models.WithdrawalStatusApproved && status != models.WithdrawalStatusRejected {
		return nil, ErrInvalidStatus
	}

	existing, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var resolved *models.Withdrawal
	refunded := false
	account, err := s.store.UpdateAccount(ctx, existing.AccountID, func(tx AccountTx) error {
		w, err := tx.Withdrawal(ctx, id)
		if err != nil {
			return err
		}
		if !w.IsPending() {
			return ErrNotPending
		}

		switch {
		case status == models.WithdrawalStatusRejected && s.refundOnReject:
			if err := s.failTransaction(ctx, tx, w, now, "Rejected by admin"); err != nil {
				return err
			}
			applyRefund(tx, w.Amount, now)
			refunded = true
		default:
			if err := s.completeTransaction(ctx, tx, w, now); err != nil {
				return err
			}
		}

		w.Status = status
		w.UpdatedAt = now
		w.ResolvedAt = &now
		tx.PutWithdrawal(w)
		resolved = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Withdrawals.WithLabelValues(string(status)).Inc()
	if refunded {
		s.broadcaster.BroadcastBalance(account)
	}
	s.log.WithFields(logrus.Fields{
		"account_id":    account.ID,
		"withdrawal_id": id,
		"status":        status,
		"refunded":      refunded,
	}).Info("Withdrawal resolved")

	return resolved, nil
}

func (s *WithdrawalService) completeTransaction(ctx context.Context, tx AccountTx, w *models.Withdrawal, now time.Time) error {
	entry, err := tx.Transaction(ctx, w.TransactionID)
	if err != nil {
		return err
	}
	entry.Status = models.TransactionStatusCompleted
	entry.UpdatedAt = now
	tx.PutTransaction(entry)
	return nil
}

func (s *WithdrawalService) failTransaction(ctx context.Context, tx AccountTx, w *models.Withdrawal, now time.Time, reason string) error {
	entry, err := tx.Transaction(ctx, w.TransactionID)
	if err != nil {
		return err
	}
	entry.Status = models.TransactionStatusFailed
	entry.Description = entry.Description + " (" + reason + ")"
	entry.UpdatedAt = now
	tx.PutTransaction(entry)
	return nil
}

func (s *WithdrawalService) Get(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, id)
}

func (s *WithdrawalService) List(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, filter)
}
