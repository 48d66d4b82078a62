package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adpulse/campaign-analytics/internal/models"
)

func TestCompareSignificantDifference(t *testing.T) {
	a := counters(8500, 340, 0, 0)
	b := counters(8500, 468, 0, 0)

	cmp := Compare(a, b, models.MetricCTR, 0.05)

	assert.True(t, cmp.Significant)
	assert.Less(t, cmp.PValue, 0.001)
	assert.Equal(t, "B", cmp.Winner)
	assert.Equal(t, 4.0, cmp.MetricA)
	assert.Equal(t, 5.51, cmp.MetricB)
	assert.Greater(t, cmp.Improvement, 0.0)
	assert.Greater(t, cmp.Confidence, 99.0)
}

func TestCompareNoWinnerWithoutSignificance(t *testing.T) {
	a := counters(1000, 50, 0, 0)
	b := counters(1000, 52, 0, 0)

	cmp := Compare(a, b, models.MetricCTR, 0.05)

	assert.False(t, cmp.Significant)
	assert.Empty(t, cmp.Winner)
	assert.Greater(t, cmp.PValue, 0.05)
}

func TestCompareZeroTrialsShortCircuits(t *testing.T) {
	cmp := Compare(counters(0, 0, 0, 0), counters(1000, 50, 0, 0), models.MetricCTR, 0.05)

	assert.False(t, cmp.Significant)
	assert.Equal(t, 1.0, cmp.PValue)
	assert.Empty(t, cmp.Winner)
	assert.Equal(t, 0.0, cmp.Confidence)

	// conversion_rate uses clicks as trials; impressions alone are not
	// enough.
	cmp = Compare(counters(5000, 0, 0, 0), counters(5000, 100, 10, 0), models.MetricConversionRate, 0.05)
	assert.False(t, cmp.Significant)
	assert.Equal(t, 1.0, cmp.PValue)
}

func TestCompareIdenticalVariations(t *testing.T) {
	c := counters(1000, 50, 5, 100)
	cmp := Compare(c, c, models.MetricCTR, 0.05)

	assert.False(t, cmp.Significant)
	assert.Empty(t, cmp.Winner)
	assert.Equal(t, 0.0, cmp.Improvement)
}

func TestCompareConversionRateMetric(t *testing.T) {
	a := counters(10000, 1000, 100, 0)
	b := counters(10000, 1000, 200, 0)

	cmp := Compare(a, b, models.MetricConversionRate, 0.05)

	assert.True(t, cmp.Significant)
	assert.Equal(t, "B", cmp.Winner)
	assert.Equal(t, 10.0, cmp.MetricA)
	assert.Equal(t, 20.0, cmp.MetricB)
}

func TestCompareInvalidAlphaFallsBack(t *testing.T) {
	a := counters(8500, 340, 0, 0)
	b := counters(8500, 468, 0, 0)

	// Out-of-range alpha falls back to the default cutoff.
	cmp := Compare(a, b, models.MetricCTR, 0)
	assert.True(t, cmp.Significant)
}

func TestChiSquareDegenerateMargins(t *testing.T) {
	// No successes anywhere: no evidence of a difference.
	assert.Equal(t, 1.0, chiSquarePValue(0, 100, 0, 100))
	// All successes: same.
	assert.Equal(t, 1.0, chiSquarePValue(100, 0, 100, 0))
}
