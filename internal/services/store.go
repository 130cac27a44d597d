package services

import (
	"context"
	"time"

	"adearn-backend/internal/models"
)

// AccountTx is the view of one account inside Store.UpdateAccount. Reads see
// committed state for that account; writes are buffered and committed
// together with the account, or not at all.
type AccountTx interface {
	Account() *models.Account

	// Withdrawal returns ErrWithdrawalNotFound unless the request exists and
	// belongs to the account.
	Withdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	Transaction(ctx context.Context, id string) (*models.Transaction, error)
	HasRecentClickReward(ctx context.Context, linkID string, since time.Time) (bool, error)

	PutTransaction(tx *models.Transaction)
	PutWithdrawal(w *models.Withdrawal)
	DeleteWithdrawal(id string)
	PutClick(c *models.ClickRecord)
	IncrementLinkClicks(linkID string)
}

// Store persists accounts and everything hanging off them.
//
// UpdateAccount is the only way to change an account. It serializes callers
// per account, runs fn against a private copy, rejects a negative balance
// with ErrInsufficientBalance and commits the copy plus fn's buffered writes
// atomically. If fn returns an error nothing is written.
type Store interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccount(ctx context.Context, id string, fn func(tx AccountTx) error) (*models.Account, error)
	ListAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	// LedgerStats aggregates the ledger as of asOf: accounts created in the
	// 24h before it count as new, and ad counters from before its daily
	// reset boundary count as zero.
	LedgerStats(ctx context.Context, asOf time.Time) (*models.LedgerStats, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)

	CreateLink(ctx context.Context, l *models.DirectLink) error
	UpdateLink(ctx context.Context, l *models.DirectLink) error
	DeleteLink(ctx context.Context, id string) error
	GetLink(ctx context.Context, id string) (*models.DirectLink, error)
	ListLinks(ctx context.Context, activeOnly bool) ([]*models.DirectLink, error)
	NextLinkPosition(ctx context.Context) (int, error)

	SaveClick(ctx context.Context, c *models.ClickRecord) error
	ClickExists(ctx context.Context, userID, linkID string, clientTimestamp int64) (bool, error)
	ListClicks(ctx context.Context, filter models.ClickFilter) ([]*models.ClickRecord, error)

	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// NewUserWindow is how far back LedgerStats counts an account as new.
const NewUserWindow = 24 * time.Hour

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return DefaultListLimit
	}
	return limit
}

// pendingWrites is the write buffer shared by the store implementations.
type pendingWrites struct {
	transactions []*models.Transaction
	withdrawals  []*models.Withdrawal
	deleted      []string
	clicks       []*models.ClickRecord
	linkClicks   []string
}

func (p *pendingWrites) PutTransaction(tx *models.Transaction) {
	p.transactions = append(p.transactions, tx)
}

func (p *pendingWrites) PutWithdrawal(w *models.Withdrawal) {
	p.withdrawals = append(p.withdrawals, w)
}

func (p *pendingWrites) DeleteWithdrawal(id string) {
	p.deleted = append(p.deleted, id)
}

func (p *pendingWrites) PutClick(c *models.ClickRecord) {
	p.clicks = append(p.clicks, c)
}

func (p *pendingWrites) IncrementLinkClicks(linkID string) {
	p.linkClicks = append(p.linkClicks, linkID)
}

// bufferedTransaction returns the last buffered write of id, if any.
func (p *pendingWrites) bufferedTransaction(id string) *models.Transaction {
	for i := len(p.transactions) - 1; i >= 0; i-- {
		if p.transactions[i].ID == id {
			return p.transactions[i]
		}
	}
	return nil
}

func (p *pendingWrites) isDeleted(id string) bool {
	for _, d := range p.deleted {
		if d == id {
			return true
		}
	}
	return false
}

// bufferedWithdrawal reports the buffered state of id. found is false when
// the unit has not touched it.
func (p *pendingWrites) bufferedWithdrawal(id string) (w *models.Withdrawal, found bool) {
	if p.isDeleted(id) {
		return nil, true
	}
	for i := len(p.withdrawals) - 1; i >= 0; i-- {
		if p.withdrawals[i].ID == id {
			return p.withdrawals[i], true
		}
	}
	return nil, false
}

// finalWithdrawals drops puts of requests deleted in the same unit.
func (p *pendingWrites) finalWithdrawals() []*models.Withdrawal {
	out := make([]*models.Withdrawal, 0, len(p.withdrawals))
	for _, w := range p.withdrawals {
		if p.isDeleted(w.ID) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func checkCommit(before, after *models.Account) error {
	if after.ID != before.ID {
		return ErrInternal.Detail("account id cannot change")
	}
	if after.Balance.IsNegative() {
		return ErrInsufficientBalance
	}
	if after.TotalEarnings.LessThan(before.TotalEarnings) {
		return ErrInternal.Detail("total earnings cannot decrease")
	}
	return nil
}
