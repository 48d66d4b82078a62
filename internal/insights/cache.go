package insights

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// SummaryCache fronts the summary repository on the dashboard read
// path. Get returns nil, nil on a miss; Set overwrites. The cache is
// advisory: any failure degrades to a repository read.
type SummaryCache interface {
	Get(ctx context.Context, campaignID string) (*models.CampaignSummary, error)
	Set(ctx context.Context, s *models.CampaignSummary) error
	Invalidate(ctx context.Context, campaignID string) error
}

// summaryCacheTTL bounds staleness after an external writer bypasses
// the recompute path. Recomputes refresh the entry immediately.
const summaryCacheTTL = time.Minute

// RedisSummaryCache stores summaries as JSON blobs keyed per campaign.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client, ttl: summaryCacheTTL}
}

func cacheKey(campaignID string) string {
	return "summary_cache:" + campaignID
}

func (c *RedisSummaryCache) Get(ctx context.Context, campaignID string) (*models.CampaignSummary, error) {
	data, err := c.client.Get(ctx, cacheKey(campaignID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s models.CampaignSummary
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt entry behaves like a miss.
		_ = c.client.Del(ctx, cacheKey(campaignID)).Err()
		return nil, nil
	}
	return &s, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, s *models.CampaignSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(s.CampaignID), data, c.ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, campaignID string) error {
	return c.client.Del(ctx, cacheKey(campaignID)).Err()
}
