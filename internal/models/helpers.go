package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s",
		prefix,
		now.UTC().Format("20060102"),
		strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func GenerateTransactionID(now time.Time) string {
	return newID("tx", now)
}

func GenerateWithdrawalID(now time.Time) string {
	return newID("wd", now)
}

func GenerateClickID(now time.Time) string {
	return newID("click", now)
}

func GenerateLinkID(now time.Time) string {
	return newID("link", now)
}

func (l *DirectLink) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("title is required")
	}
	u, err := url.Parse(l.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) url")
	}

	switch l.Category {
	case LinkCategoryGeneral, LinkCategoryAdult:
	default:
		return fmt.Errorf("invalid category: %s", l.Category)
	}

	if l.Position < 1 {
		return fmt.Errorf("position must be at least 1")
	}
	if l.RewardPerClick.IsNegative() {
		return fmt.Errorf("rewardPerClick must not be negative")
	}
	return nil
}

// AmountScale is the number of fractional digits stored for any amount.
const AmountScale = 8

// HasScale reports whether d needs no more than places fractional digits.
func HasScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// ReferenceAmount converts a local currency amount into the reference
// currency, rounded to AmountScale.
func ReferenceAmount(local, rate decimal.Decimal) decimal.Decimal {
	return local.DivRound(rate, AmountScale)
}

// LocalAmount is the inverse of ReferenceAmount.
func LocalAmount(reference, rate decimal.Decimal) decimal.Decimal {
	return reference.Mul(rate)
}
