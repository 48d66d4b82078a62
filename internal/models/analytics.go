package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Counters is the raw observation tuple shared by daily metric records
// and A/B test variations.
type Counters struct {
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
}

func (c Counters) Validate() error {
	if c.Impressions < 0 || c.Clicks < 0 || c.Conversions < 0 {
		return errors.New("counters must not be negative")
	}
	if c.Spend.IsNegative() {
		return errors.New("spend must not be negative")
	}
	return nil
}

// Add returns the element-wise sum of two counter tuples.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Impressions: c.Impressions + o.Impressions,
		Clicks:      c.Clicks + o.Clicks,
		Conversions: c.Conversions + o.Conversions,
		Spend:       c.Spend.Add(o.Spend),
	}
}

// MetricRecord holds one day of observed performance for one campaign.
// At most one record exists per (campaign, date); re-ingestion replaces
// all four counters together and the derived fields are recomputed
// before the record is persisted.
type MetricRecord struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	// Date is a calendar day; only the date part is significant.
	Date time.Time `json:"date"`

	Counters

	// Derived per-day fields, recomputed on every write.
	CTR float64 `json:"ctr"`
	CPC float64 `json:"cpc"`
	CPA float64 `json:"cpa"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *MetricRecord) Validate() error {
	if m.CampaignID == "" {
		return errors.New("campaign_id is required")
	}
	if m.Date.IsZero() {
		return errors.New("date is required")
	}
	return m.Counters.Validate()
}

// Day returns the record's date truncated to midnight UTC, the
// canonical key used for uniqueness.
func (m *MetricRecord) Day() time.Time {
	return m.Date.UTC().Truncate(24 * time.Hour)
}

// CampaignSummary is the materialized rollup over all metric records of
// one campaign (1:1). Every field is a pure function of the current
// record set; it is never mutated except by a full recompute.
type CampaignSummary struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`

	TotalImpressions int64           `json:"total_impressions"`
	TotalClicks      int64           `json:"total_clicks"`
	TotalConversions int64           `json:"total_conversions"`
	TotalSpend       decimal.Decimal `json:"total_spend"`

	AvgCTR            float64 `json:"avg_ctr"`
	AvgCPC            float64 `json:"avg_cpc"`
	AvgConversionRate float64 `json:"avg_conversion_rate"`
	ROAS              float64 `json:"roas"`

	PerformanceScore int `json:"performance_score"`

	LastUpdated time.Time `json:"last_updated"`
}

// Totals returns the summary's lifetime counters as a tuple.
func (s *CampaignSummary) Totals() Counters {
	return Counters{
		Impressions: s.TotalImpressions,
		Clicks:      s.TotalClicks,
		Conversions: s.TotalConversions,
		Spend:       s.TotalSpend,
	}
}
