package insights

import (
	"math"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// DefaultSignificanceLevel is the p-value cutoff when a test does not
// carry its own confidence level.
const DefaultSignificanceLevel = 0.05

// Comparison is the outcome of one two-variation significance test.
// Winner is "A" or "B" and is only ever set when Significant is true;
// a non-significant difference must not name a winner.
type Comparison struct {
	Significant bool    `json:"significant"`
	PValue      float64 `json:"p_value"`
	Winner      string  `json:"winner,omitempty"`
	Confidence  float64 `json:"confidence"`
	MetricA     float64 `json:"metric_a"`
	MetricB     float64 `json:"metric_b"`
	Improvement float64 `json:"improvement"`
}

// Compare runs a chi-square test of independence on the 2x2
// contingency table induced by the success metric:
//
//	ctr:             (clicks, impressions-clicks) per variation
//	conversion_rate: (conversions, clicks-conversions) per variation
//
// alpha is the significance cutoff (0.05 for 95% confidence). When
// either variation lacks the metric's denominator entirely the data is
// insufficient and the comparison short-circuits to p=1 before any
// division can happen.
func Compare(a, b models.Counters, metric models.SuccessMetric, alpha float64) Comparison {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSignificanceLevel
	}

	var successA, trialsA, successB, trialsB int64
	switch metric {
	case models.MetricConversionRate:
		successA, trialsA = a.Conversions, a.Clicks
		successB, trialsB = b.Conversions, b.Clicks
	default:
		successA, trialsA = a.Clicks, a.Impressions
		successB, trialsB = b.Clicks, b.Impressions
	}

	if trialsA == 0 || trialsB == 0 {
		return Comparison{Significant: false, PValue: 1.0, Confidence: 0}
	}

	metricA := MetricValue(metric, a)
	metricB := MetricValue(metric, b)

	p := chiSquarePValue(
		float64(successA), float64(trialsA-successA),
		float64(successB), float64(trialsB-successB),
	)

	cmp := Comparison{
		Significant: p < alpha,
		PValue:      p,
		Confidence:  (1 - p) * 100,
		MetricA:     metricA,
		MetricB:     metricB,
	}
	if cmp.Significant {
		if metricA > metricB {
			cmp.Winner = "A"
		} else {
			cmp.Winner = "B"
		}
	}
	if m := math.Max(metricA, metricB); m > 0 {
		cmp.Improvement = math.Abs(metricA-metricB) / m * 100
	}
	return cmp
}

// chiSquarePValue computes the p-value of the chi-square independence
// test on the 2x2 table [[a b] [c d]], with the Yates continuity
// correction (the absolute deviation from expected is reduced by 0.5,
// floored at 0), matching the conventional treatment of 2x2 tables.
// For one degree of freedom the survival function has the closed form
// erfc(sqrt(x/2)), so no incomplete-gamma machinery is needed.
func chiSquarePValue(a, b, c, d float64) float64 {
	n := a + b + c + d
	row1, row2 := a+b, c+d
	col1, col2 := a+c, b+d

	// A degenerate margin (all successes or all failures) carries no
	// evidence of a difference.
	if row1 == 0 || row2 == 0 || col1 == 0 || col2 == 0 {
		return 1.0
	}

	observed := [4]float64{a, b, c, d}
	expected := [4]float64{
		row1 * col1 / n,
		row1 * col2 / n,
		row2 * col1 / n,
		row2 * col2 / n,
	}

	chi2 := 0.0
	for i := range observed {
		diff := math.Abs(observed[i]-expected[i]) - 0.5
		if diff < 0 {
			diff = 0
		}
		chi2 += diff * diff / expected[i]
	}

	return math.Erfc(math.Sqrt(chi2 / 2))
}
