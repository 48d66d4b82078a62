package insights

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/metrics"
	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

// PeriodTotals is the fold of all metric records of one reporting
// window, with the headline rates derived from the window's totals.
type PeriodTotals struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	Spend          float64 `json:"spend"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	ROAS           float64 `json:"roas"`
}

// Growth holds week-over-week percentage changes. A zero prior week is
// treated as a baseline of one unit so a first active week reads as
// large growth instead of a division error.
type Growth struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Conversions float64 `json:"conversions"`
	Spend       float64 `json:"spend"`
}

// WeeklyReport is the full dashboard payload: the current window's
// totals, the trend against the prior window and the rule engine's
// advice.
type WeeklyReport struct {
	UserID      string    `json:"user_id,omitempty"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	GeneratedAt time.Time `json:"generated_at"`

	ThisWeek PeriodTotals `json:"this_week"`
	LastWeek PeriodTotals `json:"last_week"`
	Growth   Growth       `json:"growth"`

	TotalCampaigns  int `json:"total_campaigns"`
	ActiveCampaigns int `json:"active_campaigns"`
	AdsGenerated    int `json:"ads_generated"`

	TopCampaign   *CampaignScore `json:"top_campaign,omitempty"`
	WorstCampaign *CampaignScore `json:"worst_campaign,omitempty"`

	Recommendations []models.Recommendation `json:"recommendations"`
	NextSteps       []string                `json:"next_steps"`
}

// ReportService assembles weekly reports from the repositories and the
// recommendation engine. It reads through the summary service so that
// campaigns without a materialized summary still score.
type ReportService struct {
	campaigns storage.CampaignRepo
	records   storage.MetricRepo
	summaries *SummaryService
	tests     storage.ABTestRepo
	engine    *Engine
	metrics   *metrics.Metrics
	logger    *zap.Logger

	revenuePerConversion float64
}

func NewReportService(
	campaigns storage.CampaignRepo,
	records storage.MetricRepo,
	summaries *SummaryService,
	tests storage.ABTestRepo,
	engine *Engine,
	m *metrics.Metrics,
	logger *zap.Logger,
	revenuePerConversion float64,
) *ReportService {
	if revenuePerConversion <= 0 {
		revenuePerConversion = DefaultRevenuePerConversion
	}
	if engine == nil {
		engine = NewEngine(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		campaigns:            campaigns,
		records:              records,
		summaries:            summaries,
		tests:                tests,
		engine:               engine,
		metrics:              m,
		logger:               logger,
		revenuePerConversion: revenuePerConversion,
	}
}

// GenerateWeekly builds the report for the seven days ending at now,
// compared against the seven days before that. An empty userID reports
// over all campaigns.
func (s *ReportService) GenerateWeekly(ctx context.Context, userID string, now time.Time) (*WeeklyReport, error) {
	now = now.UTC()
	weekStart := now.AddDate(0, 0, -7)
	prevStart := now.AddDate(0, 0, -14)

	var (
		campaigns []*models.Campaign
		err       error
	)
	if userID == "" {
		campaigns, err = s.campaigns.ListAll(ctx)
	} else {
		campaigns, err = s.campaigns.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	var (
		week   models.Counters
		prev   models.Counters
		active int
	)
	week.Spend, prev.Spend = decimal.Zero, decimal.Zero

	for _, c := range campaigns {
		if c.ActiveOn(now) {
			active++
		}
		recs, err := s.records.ListByCampaign(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list records for %s: %w", c.ID, err)
		}
		for _, r := range recs {
			day := r.Day()
			switch {
			case !day.Before(weekStart) && day.Before(now.Add(24*time.Hour)):
				week = week.Add(r.Counters)
			case !day.Before(prevStart) && day.Before(weekStart):
				prev = prev.Add(r.Counters)
			}
		}
	}

	top, worst, err := s.rankCampaigns(ctx, campaigns)
	if err != nil {
		return nil, err
	}

	adsGenerated, err := s.countVariations(ctx, campaigns, weekStart, now)
	if err != nil {
		return nil, err
	}

	thisWeek := periodTotals(week, s.revenuePerConversion)
	lastWeek := periodTotals(prev, s.revenuePerConversion)
	growth := Growth{
		Impressions: growthPct(week.Impressions, prev.Impressions),
		Clicks:      growthPct(week.Clicks, prev.Clicks),
		Conversions: growthPct(week.Conversions, prev.Conversions),
		Spend:       growthPctFloat(thisWeek.Spend, lastWeek.Spend),
	}

	snap := Snapshot{
		AvgCTR:          thisWeek.CTR,
		ConversionRate:  thisWeek.ConversionRate,
		ClickGrowth:     growth.Clicks,
		ROAS:            thisWeek.ROAS,
		TotalSpend:      thisWeek.Spend,
		ActiveCampaigns: active,
		AdsGenerated:    adsGenerated,
		TopCampaign:     top,
		WorstCampaign:   worst,
	}

	recommendations := s.engine.Recommend(snap)
	report := &WeeklyReport{
		UserID:          userID,
		PeriodStart:     weekStart,
		PeriodEnd:       now,
		GeneratedAt:     time.Now().UTC(),
		ThisWeek:        thisWeek,
		LastWeek:        lastWeek,
		Growth:          growth,
		TotalCampaigns:  len(campaigns),
		ActiveCampaigns: active,
		AdsGenerated:    adsGenerated,
		TopCampaign:     top,
		WorstCampaign:   worst,
		Recommendations: recommendations,
		NextSteps:       s.engine.NextSteps(snap),
	}

	if s.metrics != nil {
		priorities := make([]string, 0, len(recommendations))
		for _, r := range recommendations {
			priorities = append(priorities, string(r.Priority))
		}
		s.metrics.RecordRecommendations(priorities)
		s.metrics.ActiveCampaigns.Set(float64(active))
	}
	s.logger.Info("weekly report generated",
		zap.String("user_id", userID),
		zap.Int("campaigns", len(campaigns)),
		zap.Int("recommendations", len(recommendations)),
	)
	return report, nil
}

// rankCampaigns scores every campaign through the summary service and
// returns the best and worst performers. Both are nil when no campaign
// exists.
func (s *ReportService) rankCampaigns(ctx context.Context, campaigns []*models.Campaign) (top, worst *CampaignScore, err error) {
	for _, c := range campaigns {
		sum, err := s.summaries.GetSummary(ctx, c.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to score campaign %s: %w", c.ID, err)
		}
		cs := &CampaignScore{Title: c.Title, Score: sum.PerformanceScore}
		if top == nil || cs.Score > top.Score {
			top = cs
		}
		if worst == nil || cs.Score < worst.Score {
			worst = cs
		}
	}
	return top, worst, nil
}

// countVariations counts A/B test variations created inside the window,
// the report's proxy for creative output.
func (s *ReportService) countVariations(ctx context.Context, campaigns []*models.Campaign, from, to time.Time) (int, error) {
	count := 0
	for _, c := range campaigns {
		tests, err := s.tests.ListByCampaign(ctx, c.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to list tests for %s: %w", c.ID, err)
		}
		for _, t := range tests {
			for _, v := range t.Variations {
				if !v.CreatedAt.Before(from) && v.CreatedAt.Before(to) {
					count++
				}
			}
		}
	}
	return count, nil
}

func periodTotals(c models.Counters, revenuePerConversion float64) PeriodTotals {
	return PeriodTotals{
		Impressions:    c.Impressions,
		Clicks:         c.Clicks,
		Conversions:    c.Conversions,
		Spend:          c.Spend.InexactFloat64(),
		CTR:            CTR(c),
		ConversionRate: ConversionRate(c),
		ROAS:           ROAS(c, revenuePerConversion),
	}
}

// growthPct is the week-over-week change in percent, rounded to one
// decimal. A zero prior value uses 1 as the baseline.
func growthPct(cur, prev int64) float64 {
	return growthPctFloat(float64(cur), float64(prev))
}

func growthPctFloat(cur, prev float64) float64 {
	if prev <= 0 {
		prev = 1
	}
	return math.Round((cur-prev)/prev*1000) / 10
}
