package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LinkCategory string

const (
	LinkCategoryGeneral LinkCategory = "general"
	LinkCategoryAdult   LinkCategory = "adult"
)

const DefaultLinkIcon = "🔗"

type DirectLink struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Icon           string          `json:"icon"`
	Category       LinkCategory    `json:"category"`
	Position       int             `json:"position"`
	IsActive       bool            `json:"isActive"`
	RewardPerClick decimal.Decimal `json:"rewardPerClick"`
	TotalClicks    int64           `json:"totalClicks"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// LinkRequest is the admin create/update payload. Nil fields keep their
// current value on update and take defaults on create.
type LinkRequest struct {
	Title          *string          `json:"title"`
	URL            *string          `json:"url"`
	Icon           *string          `json:"icon"`
	Category       *LinkCategory    `json:"category"`
	Position       *int             `json:"position"`
	IsActive       *bool            `json:"isActive"`
	RewardPerClick *decimal.Decimal `json:"rewardPerClick"`
}

// Apply copies the set fields of r onto l.
func (r *LinkRequest) Apply(l *DirectLink) {
	if r.Title != nil {
		l.Title = *r.Title
	}
	if r.URL != nil {
		l.URL = *r.URL
	}
	if r.Icon != nil {
		l.Icon = *r.Icon
	}
	if r.Category != nil {
		l.Category = *r.Category
	}
	if r.Position != nil {
		l.Position = *r.Position
	}
	if r.IsActive != nil {
		l.IsActive = *r.IsActive
	}
	if r.RewardPerClick != nil {
		l.RewardPerClick = *r.RewardPerClick
	}
}
