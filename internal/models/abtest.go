package models

import (
	"errors"
	"fmt"
	"time"
)

type ABTestStatus string

const (
	ABTestStatusDraft     ABTestStatus = "draft"
	ABTestStatusRunning   ABTestStatus = "running"
	ABTestStatusPaused    ABTestStatus = "paused"
	ABTestStatusCompleted ABTestStatus = "completed"
)

// SuccessMetric selects which proportion an A/B test is judged on. It
// is a closed set; adding a metric means extending the switch in the
// significance engine, checked at compile time.
type SuccessMetric string

const (
	MetricCTR            SuccessMetric = "ctr"
	MetricConversionRate SuccessMetric = "conversion_rate"
)

func ParseSuccessMetric(s string) (SuccessMetric, error) {
	switch SuccessMetric(s) {
	case MetricCTR, MetricConversionRate:
		return SuccessMetric(s), nil
	case "":
		return MetricCTR, nil
	default:
		return "", fmt.Errorf("unknown success metric %q", s)
	}
}

// ABTest is one experiment over a campaign. Winner, IsSignificant and
// PValue are only ever written by a completed analysis: the test must
// be running and every variation must have reached MinSampleSize.
type ABTest struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Status        ABTestStatus  `json:"status"`
	SuccessMetric SuccessMetric `json:"success_metric"`

	// ConfidenceLevel is a percentage; 95 means significance at p < 0.05.
	ConfidenceLevel float64 `json:"confidence_level"`
	// MinSampleSize is the per-variation impression floor before any
	// winner may be decided.
	MinSampleSize int64 `json:"min_sample_size"`

	Winner        string   `json:"winner,omitempty"`
	IsSignificant bool     `json:"is_significant"`
	PValue        *float64 `json:"p_value,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	Variations []*ABTestVariation `json:"variations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *ABTest) Validate() error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.CampaignID == "" {
		return errors.New("campaign_id is required")
	}
	if t.Name == "" {
		return errors.New("name is required")
	}
	if _, err := ParseSuccessMetric(string(t.SuccessMetric)); err != nil {
		return err
	}
	if t.ConfidenceLevel <= 0 || t.ConfidenceLevel >= 100 {
		return errors.New("confidence_level must be between 0 and 100")
	}
	if t.MinSampleSize < 0 {
		return errors.New("min_sample_size must not be negative")
	}
	return nil
}

// SignificanceLevel converts the confidence percentage to the p-value
// cutoff, e.g. 95 -> 0.05.
func (t *ABTest) SignificanceLevel() float64 {
	return (100 - t.ConfidenceLevel) / 100
}

// CanStart reports whether the test may transition to running.
// Completed is terminal; re-running requires a new test.
func (t *ABTest) CanStart() bool {
	return t.Status == ABTestStatusDraft || t.Status == ABTestStatusPaused
}

// ABTestVariation is one arm of an experiment: cumulative counters plus
// a declared name. Comparisons are ordered by name, not insertion.
type ABTestVariation struct {
	ID     string `json:"id"`
	TestID string `json:"test_id"`
	Name   string `json:"name"`

	Counters

	CreatedAt time.Time `json:"created_at"`
}

func (v *ABTestVariation) Validate() error {
	if v.TestID == "" {
		return errors.New("test_id is required")
	}
	if v.Name == "" {
		return errors.New("variation name is required")
	}
	return v.Counters.Validate()
}
