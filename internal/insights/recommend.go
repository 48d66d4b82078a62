package insights

import (
	"fmt"
	"sort"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// DefaultMaxRecommendations caps the advice list. A presentation
// concern, not a correctness one.
const DefaultMaxRecommendations = 6

// CampaignScore names a campaign together with its performance score,
// for the scale-top-performer and next-step rules.
type CampaignScore struct {
	Title string `json:"title"`
	Score int    `json:"score"`
}

// Snapshot is the metrics view the rule table evaluates: period rates,
// the week-over-week click trend and activity counts.
type Snapshot struct {
	AvgCTR         float64
	ConversionRate float64
	ClickGrowth    float64 // week-over-week, percent
	ROAS           float64
	TotalSpend     float64

	ActiveCampaigns int
	AdsGenerated    int

	TopCampaign   *CampaignScore
	WorstCampaign *CampaignScore
}

// Engine maps a metrics snapshot to prioritized, human-readable
// recommendations through a fixed rule table.
type Engine struct {
	maxResults int
}

func NewEngine(maxResults int) *Engine {
	if maxResults <= 0 {
		maxResults = DefaultMaxRecommendations
	}
	return &Engine{maxResults: maxResults}
}

// Recommend evaluates the rule table in declaration order, then
// stable-sorts by priority so equal-priority advice keeps table order.
func (e *Engine) Recommend(s Snapshot) []models.Recommendation {
	var recs []models.Recommendation

	// CTR analysis
	if s.AvgCTR < 2 {
		recs = append(recs, models.Recommendation{
			Category:    "Performance",
			Priority:    models.PriorityHigh,
			Title:       "Improve Click-Through Rate",
			Description: fmt.Sprintf("Your weekly CTR is %.2f%%, which is below the 3-5%% industry benchmark. Test new headlines and visuals.", s.AvgCTR),
			Action:      "A/B Test Creatives",
			Impact:      "+50-100% potential CTR increase",
			Metric:      "CTR",
			Current:     fmt.Sprintf("%.2f%%", s.AvgCTR),
			Target:      "3-5%",
		})
	} else if s.AvgCTR >= 5 {
		recs = append(recs, models.Recommendation{
			Category:    "Performance",
			Priority:    models.PriorityHigh,
			Title:       "Excellent Performance - Scale Up",
			Description: fmt.Sprintf("Your %.2f%% CTR is outstanding! Scale your best campaigns to maximize results.", s.AvgCTR),
			Action:      "Increase Budget",
			Impact:      "+100-200% potential reach",
			Metric:      "CTR",
			Current:     fmt.Sprintf("%.2f%%", s.AvgCTR),
			Target:      "Maintain",
		})
	}

	// Conversion funnel
	if s.ConversionRate < 5 && s.AvgCTR > 2 {
		recs = append(recs, models.Recommendation{
			Category:    "Optimization",
			Priority:    models.PriorityHigh,
			Title:       "Optimize Conversion Funnel",
			Description: fmt.Sprintf("You have good traffic (%.2f%% CTR) but low conversions (%.2f%%). Review landing pages.", s.AvgCTR, s.ConversionRate),
			Action:      "Optimize Landing Page",
			Impact:      "+30-60% conversion increase",
			Metric:      "Conversion Rate",
			Current:     fmt.Sprintf("%.2f%%", s.ConversionRate),
			Target:      "5-10%",
		})
	}

	// Growth trend
	if s.ClickGrowth < -10 {
		recs = append(recs, models.Recommendation{
			Category:    "Engagement",
			Priority:    models.PriorityHigh,
			Title:       "Reverse Declining Engagement",
			Description: fmt.Sprintf("Engagement dropped %.1f%% this week. Refresh ad creatives and review audience targeting.", s.ClickGrowth),
			Action:      "Refresh Campaign",
			Impact:      "Reverse negative trend",
			Metric:      "Weekly Growth",
			Current:     fmt.Sprintf("%.1f%%", s.ClickGrowth),
			Target:      "+10%",
		})
	} else if s.ClickGrowth > 20 {
		recs = append(recs, models.Recommendation{
			Category:    "Growth",
			Priority:    models.PriorityMedium,
			Title:       "Capitalize on Momentum",
			Description: fmt.Sprintf("Strong %.1f%% growth! Now is the time to increase investment and expand reach.", s.ClickGrowth),
			Action:      "Scale Investment",
			Impact:      "Maximize growth period",
			Metric:      "Weekly Growth",
			Current:     fmt.Sprintf("%.1f%%", s.ClickGrowth),
			Target:      "Sustain",
		})
	}

	// Content volume
	if s.AdsGenerated < 5 {
		recs = append(recs, models.Recommendation{
			Category:    "Content",
			Priority:    models.PriorityMedium,
			Title:       "Increase Ad Variations",
			Description: fmt.Sprintf("Only %d ads created this week. More variations improve testing effectiveness.", s.AdsGenerated),
			Action:      "Generate 5+ Variations",
			Impact:      "+25% optimization potential",
			Metric:      "Content Volume",
			Current:     fmt.Sprintf("%d ads", s.AdsGenerated),
			Target:      "10+ ads/week",
		})
	}

	// Budget efficiency
	if s.TotalSpend > 0 && s.ROAS < 2 {
		recs = append(recs, models.Recommendation{
			Category:    "Budget",
			Priority:    models.PriorityHigh,
			Title:       "Improve Return on Ad Spend",
			Description: fmt.Sprintf("Current ROAS is %.2fx. Review targeting and pause low-performing campaigns.", s.ROAS),
			Action:      "Optimize Budget Allocation",
			Impact:      "+50-100% ROAS improvement",
			Metric:      "ROAS",
			Current:     fmt.Sprintf("%.2fx", s.ROAS),
			Target:      "3-5x",
		})
	}

	// Campaign activity
	if s.ActiveCampaigns == 0 {
		recs = append(recs, models.Recommendation{
			Category:    "Campaigns",
			Priority:    models.PriorityHigh,
			Title:       "Launch Active Campaigns",
			Description: "No active campaigns running. Create and launch campaigns to start generating results.",
			Action:      "Create Campaign",
			Impact:      "Begin generating ROI",
			Metric:      "Active Campaigns",
			Current:     "0",
			Target:      "3-5",
		})
	}

	// Scale the top performer
	if s.TopCampaign != nil && s.TopCampaign.Score > 70 {
		recs = append(recs, models.Recommendation{
			Category:    "Scaling",
			Priority:    models.PriorityMedium,
			Title:       fmt.Sprintf("Scale Top Performer: %s", s.TopCampaign.Title),
			Description: fmt.Sprintf("This campaign has %d/100 score. Allocate more budget.", s.TopCampaign.Score),
			Action:      "Increase Budget by 25%",
			Impact:      "+30-50% additional reach",
			Metric:      "Performance Score",
			Current:     fmt.Sprintf("%d/100", s.TopCampaign.Score),
			Target:      "Maximize",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})

	if len(recs) > e.maxResults {
		recs = recs[:e.maxResults]
	}
	return recs
}

// NextSteps produces the report's short action list.
func (e *Engine) NextSteps(s Snapshot) []string {
	var steps []string

	if s.TopCampaign != nil {
		steps = append(steps, fmt.Sprintf("Review and scale best performer: %s", s.TopCampaign.Title))
	}
	if s.WorstCampaign != nil && s.WorstCampaign.Score < 50 {
		steps = append(steps, fmt.Sprintf("Improve or pause low performer: %s (%d/100)", s.WorstCampaign.Title, s.WorstCampaign.Score))
	}
	if s.AvgCTR < 3 {
		steps = append(steps, fmt.Sprintf("Run A/B tests on headlines and visuals to improve %.2f%% CTR", s.AvgCTR))
	}
	if s.AdsGenerated < 10 {
		steps = append(steps, fmt.Sprintf("Generate %d more ad variations for testing", 10-s.AdsGenerated))
	}
	if s.ActiveCampaigns < 3 {
		steps = append(steps, "Launch 2-3 new campaigns targeting different audiences")
	}
	steps = append(steps,
		"Check audience insights for optimal posting times",
		"Review budget allocation across all campaigns",
	)

	if len(steps) > 5 {
		steps = steps[:5]
	}
	return steps
}
