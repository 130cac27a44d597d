package services

import (
	"errors"
	"net/http"
	"time"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindValidation
	KindRateLimited
	KindForbidden
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a business rule failure that maps onto an HTTP response.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int

	// RetryAfter is a hint for rate limited errors; zero means unknown.
	RetryAfter time.Duration

	parent *Error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// Retryable reports whether the same request may succeed after a delay.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited
}

func newError(kind ErrorKind, status int, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

var (
	ErrAccountNotFound     = newError(KindNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")
	ErrAccountExists       = newError(KindConflict, http.StatusConflict, "ACCOUNT_EXISTS", "Account already exists")
	ErrInvalidAccount      = newError(KindValidation, http.StatusBadRequest, "INVALID_ACCOUNT", "Account id is required")
	ErrInvalidAmount       = newError(KindValidation, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero")
	ErrInsufficientBalance = newError(KindConflict, http.StatusConflict, "INSUFFICIENT_BALANCE", "Insufficient balance")

	ErrInvalidAdType     = newError(KindValidation, http.StatusBadRequest, "INVALID_AD_TYPE", "Ad type must be auto or manual")
	ErrTooSoon           = newError(KindRateLimited, http.StatusTooManyRequests, "TOO_SOON", "Please wait before watching another ad")
	ErrDailyCapReached   = newError(KindRateLimited, http.StatusTooManyRequests, "DAILY_CAP_REACHED", "Daily ad limit reached")
	ErrInvalidSignature  = newError(KindForbidden, http.StatusForbidden, "INVALID_SIGNATURE", "Invalid click signature")
	ErrInvalidTimeWindow = newError(KindForbidden, http.StatusForbidden, "INVALID_TIME_WINDOW", "Invalid time window")

	ErrAlreadyProcessing    = newError(KindRateLimited, http.StatusTooManyRequests, "ALREADY_PROCESSING", "Click is already being processed")
	ErrAlreadyRecorded      = newError(KindRateLimited, http.StatusTooManyRequests, "ALREADY_RECORDED", "Click already recorded")
	ErrAlreadyRewarded      = newError(KindRateLimited, http.StatusTooManyRequests, "ALREADY_REWARDED", "Reward already claimed for this link in the last 24 hours")
	ErrLinkNotFound         = newError(KindNotFound, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
	ErrLinkInactive         = newError(KindValidation, http.StatusBadRequest, "LINK_INACTIVE", "Link is not active")
	ErrClickAccountNotFound = newError(KindValidation, http.StatusBadRequest, "ACCOUNT_NOT_FOUND", "User not found")
	ErrInvalidLink          = newError(KindValidation, http.StatusBadRequest, "INVALID_LINK", "Invalid link")

	ErrUnknownMethod       = newError(KindValidation, http.StatusBadRequest, "UNKNOWN_METHOD", "Unsupported payment method")
	ErrUnsupportedNetwork  = newError(KindValidation, http.StatusBadRequest, "UNSUPPORTED_NETWORK", "Unsupported network for this payment method")
	ErrInvalidRecipient    = newError(KindValidation, http.StatusBadRequest, "INVALID_RECIPIENT", "Invalid recipient address")
	ErrAmountOutOfRange    = newError(KindValidation, http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE", "Amount is outside the allowed range")
	ErrWithdrawalNotFound  = newError(KindNotFound, http.StatusNotFound, "WITHDRAWAL_NOT_FOUND", "Withdrawal request not found")
	ErrNotPending          = newError(KindConflict, http.StatusConflict, "NOT_PENDING", "Only pending withdrawals can be changed")
	ErrInvalidStatus       = newError(KindValidation, http.StatusBadRequest, "INVALID_STATUS", "Status must be approved or rejected")
	ErrTransactionNotFound = newError(KindNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "Transaction not found")

	ErrInvalidTimeframe = newError(KindValidation, http.StatusBadRequest, "INVALID_TIMEFRAME", "Timeframe must be today, week, month or all")
	ErrInvalidIssuerKey = newError(KindForbidden, http.StatusForbidden, "INVALID_ISSUER_KEY", "Invalid API key")

	ErrRateLimited = newError(KindRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
	ErrInternal    = newError(KindInternal, http.StatusInternalServerError, "INTERNAL", "Internal server error")
)

// Detail returns a copy of e with a more specific message. The copy still
// matches e under errors.Is.
func (e *Error) Detail(message string) *Error {
	c := e.derive()
	c.Message = message
	return c
}

// After returns a copy of e carrying a retry hint.
func (e *Error) After(d time.Duration) *Error {
	c := e.derive()
	c.RetryAfter = d
	return c
}

func (e *Error) derive() *Error {
	c := *e
	if c.parent == nil {
		c.parent = e
	}
	return &c
}

// AsError extracts the business error from err, falling back to ErrInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
