package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeEarning    TransactionType = "earning"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is a ledger entry. Amount is always positive; the sign is implied by Type.
type Transaction struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"accountId"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	Network       string            `json:"network,omitempty"`
	WalletAddress string            `json:"walletAddress,omitempty"`
	TxHash        string            `json:"txHash,omitempty"`
	Description   string            `json:"description"`
	Reference     string            `json:"reference,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Affects reports whether the entry counts towards the account balance.
// Withdrawals are debited on submission, so pending ones count too.
func (t *Transaction) Affects() bool {
	switch t.Type {
	case TransactionTypeEarning:
		return t.Status == TransactionStatusCompleted
	case TransactionTypeWithdrawal:
		return t.Status == TransactionStatusPending || t.Status == TransactionStatusCompleted
	}
	return false
}

type TransactionFilter struct {
	AccountID string
	Type      TransactionType
	Limit     int
}

type AdjustBalanceRequest struct {
	AccountID   string          `json:"accountId" binding:"required"`
	Type        TransactionType `json:"type" binding:"required,oneof=earning withdrawal"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}
