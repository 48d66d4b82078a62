package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/metrics"
	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

// SummaryService owns the ingestion boundary for daily metric records
// and the rollup into campaign summaries. Every record mutation
// triggers a synchronous full recompute of the owning campaign's
// summary; there are no hidden triggers, the call graph is right here.
type SummaryService struct {
	campaigns storage.CampaignRepo
	records   storage.MetricRepo
	summaries storage.SummaryRepo
	ingestLog storage.IngestLog // may be nil
	cache     SummaryCache      // may be nil
	locker    Locker
	metrics   *metrics.Metrics
	logger    *zap.Logger

	revenuePerConversion float64
}

// NewSummaryService constructs a SummaryService. ingestLog, cache and m
// may be nil; revenuePerConversion falls back to the default when zero.
func NewSummaryService(
	campaigns storage.CampaignRepo,
	records storage.MetricRepo,
	summaries storage.SummaryRepo,
	ingestLog storage.IngestLog,
	cache SummaryCache,
	locker Locker,
	m *metrics.Metrics,
	logger *zap.Logger,
	revenuePerConversion float64,
) *SummaryService {
	if revenuePerConversion <= 0 {
		revenuePerConversion = DefaultRevenuePerConversion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		campaigns:            campaigns,
		records:              records,
		summaries:            summaries,
		ingestLog:            ingestLog,
		cache:                cache,
		locker:               locker,
		metrics:              m,
		logger:               logger,
		revenuePerConversion: revenuePerConversion,
	}
}

// UpsertMetricRecord replaces the (campaign, date) record with the
// given counters, recomputes the record's derived fields, persists it
// and recomputes the campaign summary. Idempotent per (campaign, date,
// counters).
func (s *SummaryService) UpsertMetricRecord(ctx context.Context, campaignID string, date time.Time, c models.Counters) (*models.MetricRecord, error) {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, err)
	}

	rec := &models.MetricRecord{
		CampaignID: campaignID,
		Date:       date.UTC().Truncate(24 * time.Hour),
		Counters:   c,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if prev, err := s.records.Get(ctx, campaignID, rec.Date); err == nil {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	// Derived fields are recomputed synchronously before persistence;
	// a stored record never carries stale ratios.
	rec.CTR = CTR(c)
	rec.CPC = CPC(c)
	rec.CPA = CPA(c)

	if err := s.records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to upsert metric record: %w", err)
	}

	s.appendIngestLog(ctx, rec, "upsert")
	if s.metrics != nil {
		s.metrics.RecordIngest(campaignID)
	}

	if _, err := s.recompute(ctx, campaignID, "ingest"); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteMetricRecord removes one day's record and recomputes the
// summary.
func (s *SummaryService) DeleteMetricRecord(ctx context.Context, campaignID string, date time.Time) error {
	if err := s.records.Delete(ctx, campaignID, date); err != nil {
		return err
	}
	s.appendIngestLog(ctx, &models.MetricRecord{CampaignID: campaignID, Date: date}, "delete")
	if s.metrics != nil {
		s.metrics.RecordDelete(campaignID)
	}
	_, err := s.recompute(ctx, campaignID, "delete")
	return err
}

// GetSummary returns the campaign's summary, materializing a zeroed
// one on first access. The dashboard read path checks the cache before
// the repository; cache failures degrade to a repository read.
func (s *SummaryService) GetSummary(ctx context.Context, campaignID string) (*models.CampaignSummary, error) {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, campaignID); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Debug("summary cache read failed", zap.Error(err))
		}
	}
	sum, err := s.summaries.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if sum != nil {
		if s.cache != nil {
			if err := s.cache.Set(ctx, sum); err != nil {
				s.logger.Debug("summary cache write failed", zap.Error(err))
			}
		}
		return sum, nil
	}
	return s.recompute(ctx, campaignID, "demand")
}

// Recompute rebuilds the summary from the full record set on demand,
// e.g. for a dashboard refresh. Safe to call redundantly.
func (s *SummaryService) Recompute(ctx context.Context, campaignID string) (*models.CampaignSummary, error) {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	return s.recompute(ctx, campaignID, "demand")
}

// recompute performs the locked read-aggregate-write sequence: read
// the complete record set, fold it, overwrite the summary in one
// write. Concurrent recomputes for the same campaign serialize on the
// per-campaign lock; last writer wins over a full rollup read.
func (s *SummaryService) recompute(ctx context.Context, campaignID, trigger string) (*models.CampaignSummary, error) {
	start := time.Now()

	release, err := s.locker.Acquire(ctx, "summary:"+campaignID)
	if err != nil {
		return nil, err
	}
	defer release()

	recs, err := s.records.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric records: %w", err)
	}

	sum := Aggregate(campaignID, recs, s.revenuePerConversion)

	if prev, err := s.summaries.Get(ctx, campaignID); err == nil && prev != nil {
		sum.ID = prev.ID
	} else {
		sum.ID = uuid.NewString()
	}
	sum.LastUpdated = time.Now().UTC()

	if err := s.summaries.Replace(ctx, sum); err != nil {
		return nil, fmt.Errorf("failed to replace summary: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, sum); err != nil {
			s.logger.Debug("summary cache refresh failed", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRecompute(trigger, time.Since(start))
	}
	s.logger.Debug("summary recomputed",
		zap.String("campaign_id", campaignID),
		zap.String("trigger", trigger),
		zap.Int("records", len(recs)),
		zap.Int("score", sum.PerformanceScore),
	)
	return sum, nil
}

func (s *SummaryService) appendIngestLog(ctx context.Context, rec *models.MetricRecord, op string) {
	if s.ingestLog == nil {
		return
	}
	ev := storage.IngestEvent{
		CampaignID:  rec.CampaignID,
		Date:        rec.Date,
		Impressions: rec.Impressions,
		Clicks:      rec.Clicks,
		Conversions: rec.Conversions,
		Spend:       rec.Spend.InexactFloat64(),
		Op:          op,
		IngestedAt:  time.Now().UTC(),
	}
	if err := s.ingestLog.Append(ctx, ev); err != nil {
		// The audit log is best effort; ingestion must not fail on it.
		if s.metrics != nil {
			s.metrics.IngestLogErrors.Inc()
		}
		s.logger.Warn("ingest log append failed", zap.Error(err))
	}
}

// Aggregate folds a campaign's metric records into a summary. Pure:
// totals are arithmetic sums, rates are derived from the summed totals
// rather than averaged per day (a mean of daily CTRs would let small
// days skew the result), and the score is banded over the rates. Zero
// records yields a zeroed summary with score 0, a valid state.
func Aggregate(campaignID string, recs []*models.MetricRecord, revenuePerConversion float64) *models.CampaignSummary {
	totals := models.Counters{Spend: decimal.Zero}
	for _, r := range recs {
		totals = totals.Add(r.Counters)
	}

	avgCTR := CTR(totals)
	avgConvRate := ConversionRate(totals)
	roas := ROAS(totals, revenuePerConversion)

	return &models.CampaignSummary{
		CampaignID:        campaignID,
		TotalImpressions:  totals.Impressions,
		TotalClicks:       totals.Clicks,
		TotalConversions:  totals.Conversions,
		TotalSpend:        totals.Spend,
		AvgCTR:            avgCTR,
		AvgCPC:            CPC(totals),
		AvgConversionRate: avgConvRate,
		ROAS:              roas,
		PerformanceScore:  PerformanceScore(avgCTR, avgConvRate, roas),
	}
}

// PerformanceScore maps the three headline rates onto a 0-100 rubric.
// Each rate contributes independently through fixed bands; the sum is
// capped at 100.
func PerformanceScore(avgCTR, avgConversionRate, roas float64) int {
	score := 0

	switch {
	case avgCTR >= 5:
		score += 30
	case avgCTR >= 3:
		score += 20
	case avgCTR >= 1:
		score += 10
	}

	switch {
	case avgConversionRate >= 10:
		score += 30
	case avgConversionRate >= 5:
		score += 20
	case avgConversionRate >= 2:
		score += 10
	}

	switch {
	case roas >= 5:
		score += 40
	case roas >= 3:
		score += 30
	case roas >= 2:
		score += 20
	case roas >= 1:
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}
