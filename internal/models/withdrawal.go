package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

type Currency string

const (
	CurrencyUSDT Currency = "USDT"
	CurrencyBDT  Currency = "BDT"
)

// Withdrawal is a request to pay balance out. Amount is in the reference
// currency; OriginalAmount and Currency are what the user entered.
type Withdrawal struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"accountId"`
	Method         string           `json:"method"`
	Network        string           `json:"network,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	OriginalAmount decimal.Decimal  `json:"originalAmount"`
	Currency       Currency         `json:"currency"`
	Recipient      string           `json:"recipient"`
	Status         WithdrawalStatus `json:"status"`
	TransactionID  string           `json:"transactionId"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	ResolvedAt     *time.Time       `json:"resolvedAt,omitempty"`
}

func (w *Withdrawal) IsPending() bool {
	return w.Status == WithdrawalStatusPending
}

type WithdrawalFilter struct {
	AccountID string
	Status    WithdrawalStatus
	Limit     int
}

type CreateWithdrawalRequest struct {
	Method            string          `json:"method" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Recipient         string          `json:"recipient" binding:"required"`
	Network           string          `json:"network"`
	AccountExternalID string          `json:"accountExternalId" binding:"required"`
}

type CancelWithdrawalRequest struct {
	ID                string `json:"id" binding:"required"`
	AccountExternalID string `json:"accountExternalId"`
}

type ResolveWithdrawalRequest struct {
	Status WithdrawalStatus `json:"status" binding:"required,oneof=approved rejected"`
}
