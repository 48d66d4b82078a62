package storage

import (
	"context"
	"errors"
	"time"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// ErrNotFound is returned when a referenced primary entity does not
// exist. Callers surface it, they never retry it.
var ErrNotFound = errors.New("not found")

// =============================================
// CAMPAIGN REPOSITORY
// =============================================

// CampaignRepo defines operations for campaign storage.
type CampaignRepo interface {
	ListAll(ctx context.Context) ([]*models.Campaign, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Campaign, error)
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	Upsert(ctx context.Context, c *models.Campaign) error
	Delete(ctx context.Context, id string) error
}

// =============================================
// METRIC RECORD REPOSITORY
// =============================================

// MetricRepo stores daily metric records. Upsert replaces the whole
// row for the record's (campaign, date) key; partial updates are not
// supported.
type MetricRepo interface {
	Upsert(ctx context.Context, rec *models.MetricRecord) error
	Delete(ctx context.Context, campaignID string, date time.Time) error
	Get(ctx context.Context, campaignID string, date time.Time) (*models.MetricRecord, error)
	// ListByCampaign returns every record of the campaign ordered by
	// date ascending. The summary recompute reads this in full.
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.MetricRecord, error)
}

// =============================================
// SUMMARY REPOSITORY
// =============================================

// SummaryRepo stores the materialized campaign summaries. Replace
// overwrites the whole summary atomically; merge updates do not exist
// because recomputation is idempotent over the full record set.
type SummaryRepo interface {
	// Get returns nil, nil when no summary exists yet.
	Get(ctx context.Context, campaignID string) (*models.CampaignSummary, error)
	Replace(ctx context.Context, s *models.CampaignSummary) error
	Delete(ctx context.Context, campaignID string) error
}

// =============================================
// A/B TEST REPOSITORY
// =============================================

// ABTestRepo stores experiments and their variations. GetByID loads
// variations.
type ABTestRepo interface {
	Create(ctx context.Context, t *models.ABTest) error
	GetByID(ctx context.Context, id string) (*models.ABTest, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.ABTest, error)
	ListAll(ctx context.Context) ([]*models.ABTest, error)
	// Update persists the test's mutable fields (status, dates,
	// winner, is_significant, p_value).
	Update(ctx context.Context, t *models.ABTest) error
	// UpsertVariation replaces a variation's counters wholesale.
	UpsertVariation(ctx context.Context, v *models.ABTestVariation) error
}

// =============================================
// INGESTION EVENT LOG
// =============================================

// IngestEvent is one row of the append-only ingestion audit log.
type IngestEvent struct {
	CampaignID  string
	Date        time.Time
	Impressions int64
	Clicks      int64
	Conversions int64
	Spend       float64
	Op          string // upsert, delete
	IngestedAt  time.Time
}

// IngestLog records every metric-record mutation for offline analysis.
// Implementations are append-only; failures must not fail ingestion.
type IngestLog interface {
	Append(ctx context.Context, ev IngestEvent) error
}
