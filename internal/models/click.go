package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ClickStatus string

const (
	ClickStatusSuccess ClickStatus = "success"
	ClickStatusFailed  ClickStatus = "failed"
)

// ClickRecord is an immutable audit row, written for every claim attempt.
type ClickRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	LinkID          string          `json:"linkId"`
	ClientTimestamp int64           `json:"timestamp"`
	Reward          decimal.Decimal `json:"reward"`
	Status          ClickStatus     `json:"status"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	IPAddress       string          `json:"ipAddress,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type ClickFilter struct {
	UserID string
	LinkID string
	Limit  int
}

type ClickClaimRequest struct {
	ID        string `json:"id" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"`
	Hash      string `json:"hash" binding:"required"`
}

type ClickTicket struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}
