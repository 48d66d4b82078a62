package insights

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

func newTestSummaryService(t *testing.T) (*SummaryService, *storage.InMemoryCampaignRepo) {
	t.Helper()
	campaigns := storage.NewInMemoryCampaignRepo()
	svc := NewSummaryService(
		campaigns,
		storage.NewInMemoryMetricRepo(),
		storage.NewInMemorySummaryRepo(),
		nil,
		nil,
		NewInMemoryLocker(),
		nil,
		zap.NewNop(),
		DefaultRevenuePerConversion,
	)
	return svc, campaigns
}

func seedCampaign(t *testing.T, campaigns *storage.InMemoryCampaignRepo, id string) {
	t.Helper()
	err := campaigns.Upsert(context.Background(), &models.Campaign{
		ID:       id,
		UserID:   "u1",
		Title:    "Test Campaign",
		Budget:   decimal.NewFromInt(1000),
		IsActive: true,
	})
	require.NoError(t, err)
}

func TestAggregateDerivesRatesFromTotals(t *testing.T) {
	recs := []*models.MetricRecord{
		{CampaignID: "c1", Date: day(2026, 1, 1), Counters: counters(1000, 40, 4, 100)},
		{CampaignID: "c1", Date: day(2026, 1, 2), Counters: counters(2000, 60, 6, 150)},
	}

	sum := Aggregate("c1", recs, DefaultRevenuePerConversion)

	assert.Equal(t, int64(3000), sum.TotalImpressions)
	assert.Equal(t, int64(100), sum.TotalClicks)
	assert.Equal(t, int64(10), sum.TotalConversions)
	assert.True(t, sum.TotalSpend.Equal(decimal.NewFromInt(250)))

	// Rates come from the summed totals, not a mean of daily rates.
	assert.Equal(t, 3.33, sum.AvgCTR)
	assert.Equal(t, 2.5, sum.AvgCPC)
	assert.Equal(t, 10.0, sum.AvgConversionRate)
	assert.Equal(t, 2.0, sum.ROAS)
	assert.Equal(t, 70, sum.PerformanceScore)
}

func TestAggregateEmptyRecordSet(t *testing.T) {
	sum := Aggregate("c1", nil, DefaultRevenuePerConversion)

	assert.Equal(t, int64(0), sum.TotalImpressions)
	assert.True(t, sum.TotalSpend.IsZero())
	assert.Equal(t, 0.0, sum.AvgCTR)
	assert.Equal(t, 0, sum.PerformanceScore)
}

func TestPerformanceScoreBands(t *testing.T) {
	cases := []struct {
		name     string
		ctr      float64
		convRate float64
		roas     float64
		want     int
	}{
		{"all zero", 0, 0, 0, 0},
		{"just below bands", 0.9, 1.9, 0.9, 0},
		{"lowest bands", 1, 2, 1, 30},
		{"middle bands", 3, 5, 3, 70},
		{"top bands capped", 5, 10, 5, 100},
		{"only roas", 0, 0, 5, 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PerformanceScore(tc.ctr, tc.convRate, tc.roas))
		})
	}
}

func TestPerformanceScoreMonotonicInCTR(t *testing.T) {
	prev := -1
	for _, ctr := range []float64{0, 0.5, 1, 2, 3, 4, 5, 10} {
		score := PerformanceScore(ctr, 0, 0)
		assert.GreaterOrEqual(t, score, prev)
		assert.LessOrEqual(t, score, 100)
		prev = score
	}
}

func TestUpsertMetricRecordRecomputesSummary(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestSummaryService(t)
	seedCampaign(t, campaigns, "c1")

	rec, err := svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), counters(1000, 40, 4, 100))
	require.NoError(t, err)
	assert.Equal(t, 4.0, rec.CTR)
	assert.Equal(t, 2.5, rec.CPC)
	assert.Equal(t, 25.0, rec.CPA)

	sum, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.TotalImpressions)
	assert.Equal(t, 4.0, sum.AvgCTR)
}

func TestUpsertMetricRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestSummaryService(t)
	seedCampaign(t, campaigns, "c1")

	c := counters(1000, 40, 4, 100)
	_, err := svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), c)
	require.NoError(t, err)
	first, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)

	_, err = svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), c)
	require.NoError(t, err)
	second, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, first.TotalImpressions, second.TotalImpressions)
	assert.Equal(t, first.TotalClicks, second.TotalClicks)
	assert.Equal(t, first.TotalConversions, second.TotalConversions)
	assert.True(t, first.TotalSpend.Equal(second.TotalSpend))
	assert.Equal(t, first.AvgCTR, second.AvgCTR)
	assert.Equal(t, first.PerformanceScore, second.PerformanceScore)
}

func TestUpsertMetricRecordReplacesDay(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestSummaryService(t)
	seedCampaign(t, campaigns, "c1")

	_, err := svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), counters(1000, 40, 4, 100))
	require.NoError(t, err)
	// Re-ingesting the same day replaces all counters, it never adds.
	_, err = svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), counters(500, 20, 2, 50))
	require.NoError(t, err)

	sum, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), sum.TotalImpressions)
	assert.Equal(t, int64(20), sum.TotalClicks)
}

func TestUpsertMetricRecordUnknownCampaign(t *testing.T) {
	svc, _ := newTestSummaryService(t)

	_, err := svc.UpsertMetricRecord(context.Background(), "missing", day(2026, 1, 5), counters(1, 0, 0, 0))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMetricRecordRecomputes(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestSummaryService(t)
	seedCampaign(t, campaigns, "c1")

	_, err := svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 5), counters(1000, 40, 4, 100))
	require.NoError(t, err)
	_, err = svc.UpsertMetricRecord(ctx, "c1", day(2026, 1, 6), counters(2000, 60, 6, 150))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMetricRecord(ctx, "c1", day(2026, 1, 6)))

	sum, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.TotalImpressions)
	assert.Equal(t, int64(40), sum.TotalClicks)
}

func TestGetSummaryMaterializesZeroedSummary(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestSummaryService(t)
	seedCampaign(t, campaigns, "c1")

	sum, err := svc.GetSummary(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "c1", sum.CampaignID)
	assert.Equal(t, int64(0), sum.TotalImpressions)
	assert.Equal(t, 0, sum.PerformanceScore)
	assert.False(t, sum.LastUpdated.IsZero())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
