package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CampaignPlatform string

const (
	PlatformInstagram CampaignPlatform = "instagram"
	PlatformFacebook  CampaignPlatform = "facebook"
	PlatformLinkedIn  CampaignPlatform = "linkedin"
	PlatformYouTube   CampaignPlatform = "youtube"
	PlatformTikTok    CampaignPlatform = "tiktok"
	PlatformGoogle    CampaignPlatform = "google"
)

// Campaign is the owning entity for metric records, the analytics
// summary and A/B tests. Deleting a campaign cascades to all of them.
type Campaign struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	Title    string           `json:"title"`
	Platform CampaignPlatform `json:"platform,omitempty"`

	Budget   decimal.Decimal `json:"budget"`
	IsActive bool            `json:"is_active"`

	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Campaign) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	if c.Title == "" {
		return errors.New("title is required")
	}
	if c.Budget.IsNegative() {
		return errors.New("budget must not be negative")
	}
	if !c.EndDate.IsZero() && !c.StartDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return errors.New("end_date must not precede start_date")
	}
	return nil
}

// ActiveOn reports whether the campaign is live on the given day.
func (c *Campaign) ActiveOn(day time.Time) bool {
	if !c.IsActive {
		return false
	}
	if !c.EndDate.IsZero() && c.EndDate.Before(day) {
		return false
	}
	return true
}
