package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/models"
)

// Ledger exposes direct balance operations and account reads.
type Ledger struct {
	store       Store
	broadcaster Broadcaster
	log         *logrus.Entry
	now         func() time.Time
}

func NewLedger(store Store, broadcaster Broadcaster, log *logrus.Entry) *Ledger {
	return &Ledger{
		store:       store,
		broadcaster: broadcasterOrNop(broadcaster),
		log:         log,
		now:         time.Now,
	}
}

func newTransaction(accountID string, typ models.TransactionType, status models.TransactionStatus, amount decimal.Decimal, now time.Time, description, reference string) *models.Transaction {
	return &models.Transaction{
		ID:          models.GenerateTransactionID(now),
		AccountID:   accountID,
		Type:        typ,
		Amount:      amount,
		Status:      status,
		Description: description,
		Reference:   reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// applyCredit adds a reward to the account and logs a completed earning.
func applyCredit(tx AccountTx, amount decimal.Decimal, now time.Time, description, reference string) *models.Transaction {
	a := tx.Account()
	a.Balance = a.Balance.Add(amount)
	a.TotalEarnings = a.TotalEarnings.Add(amount)
	a.UpdatedAt = now
	active := now
	a.LastActiveAt = &active

	t := newTransaction(a.ID, models.TransactionTypeEarning, models.TransactionStatusCompleted, amount, now, description, reference)
	tx.PutTransaction(t)
	return t
}

// applyDebit takes amount out of the balance and logs a withdrawal entry
// with the given status.
func applyDebit(tx AccountTx, amount decimal.Decimal, status models.TransactionStatus, now time.Time, description, reference string) (*models.Transaction, error) {
	a := tx.Account()
	if a.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = now

	t := newTransaction(a.ID, models.TransactionTypeWithdrawal, status, amount, now, description, reference)
	tx.PutTransaction(t)
	return t, nil
}

// applyRefund returns a debited amount. Refunds are not earnings.
func applyRefund(tx AccountTx, amount decimal.Decimal, now time.Time) {
	a := tx.Account()
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = now
}

func (l *Ledger) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.Account, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, ErrInvalidAccount
	}

	now := l.now().UTC()
	account := &models.Account{
		ID:            id,
		Username:      req.Username,
		Email:         req.Email,
		Balance:       decimal.Zero,
		TotalEarnings: decimal.Zero,
		LastResetDate: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	l.log.WithField("account_id", id).Info("Account created")
	return account, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return l.store.GetAccount(ctx, id)
}

func (l *Ledger) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	account, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// checkAmount accepts positive amounts the stores can hold exactly.
func checkAmount(amount decimal.Decimal, places int32) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !models.HasScale(amount, places) {
		return ErrInvalidAmount.Detail(fmt.Sprintf("Amount must have at most %d decimal places", places))
	}
	return nil
}

func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Account, *models.Transaction, error) {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return nil, nil, err
	}

	now := l.now().UTC()
	var entry *models.Transaction
	account, err := l.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		entry = applyCredit(tx, amount, now, description, "")
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.broadcaster.BroadcastBalance(account)
	return account, entry, nil
}

func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Account, *models.Transaction, error) {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return nil, nil, err
	}

	now := l.now().UTC()
	var entry *models.Transaction
	account, err := l.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		var err error
		entry, err = applyDebit(tx, amount, models.TransactionStatusCompleted, now, description, "")
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	l.broadcaster.BroadcastBalance(account)
	return account, entry, nil
}

// Adjust is the admin entry point for manual balance corrections.
func (l *Ledger) Adjust(ctx context.Context, req models.AdjustBalanceRequest) (*models.Account, *models.Transaction, error) {
	description := req.Description
	switch req.Type {
	case models.TransactionTypeEarning:
		if description == "" {
			description = "Manual credit"
		}
		return l.Credit(ctx, req.AccountID, req.Amount, description)
	case models.TransactionTypeWithdrawal:
		if description == "" {
			description = "Manual debit"
		}
		return l.Debit(ctx, req.AccountID, req.Amount, description)
	}
	return nil, nil, ErrInvalidAmount.Detail("Type must be earning or withdrawal")
}

func (l *Ledger) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	return l.store.ListTransactions(ctx, filter)
}
