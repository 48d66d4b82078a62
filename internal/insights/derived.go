package insights

import (
	"math"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// DefaultRevenuePerConversion is the modeled revenue attributed to one
// conversion when computing ROAS. Overridable via configuration.
const DefaultRevenuePerConversion = 50.0

// Derived-metric functions over a raw counters tuple. A zero
// denominator is an expected state for young campaigns, not an error:
// every function resolves it to 0.

// CTR returns clicks/impressions as a percentage.
func CTR(c models.Counters) float64 {
	if c.Impressions == 0 {
		return 0
	}
	return round2(float64(c.Clicks) / float64(c.Impressions) * 100)
}

// CPC returns spend per click.
func CPC(c models.Counters) float64 {
	if c.Clicks == 0 {
		return 0
	}
	return round2(c.Spend.InexactFloat64() / float64(c.Clicks))
}

// CPA returns spend per conversion.
func CPA(c models.Counters) float64 {
	if c.Conversions == 0 {
		return 0
	}
	return round2(c.Spend.InexactFloat64() / float64(c.Conversions))
}

// ConversionRate returns conversions/clicks as a percentage.
func ConversionRate(c models.Counters) float64 {
	if c.Clicks == 0 {
		return 0
	}
	return round2(float64(c.Conversions) / float64(c.Clicks) * 100)
}

// ROAS returns modeled revenue (conversions x revenuePerConversion)
// divided by spend.
func ROAS(c models.Counters, revenuePerConversion float64) float64 {
	spend := c.Spend.InexactFloat64()
	if spend <= 0 {
		return 0
	}
	return round2(float64(c.Conversions) * revenuePerConversion / spend)
}

// MetricValue extracts the named success metric from a counters tuple.
func MetricValue(metric models.SuccessMetric, c models.Counters) float64 {
	switch metric {
	case models.MetricConversionRate:
		return ConversionRate(c)
	default:
		return CTR(c)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
