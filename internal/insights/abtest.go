package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/metrics"
	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

// ErrInvalidState rejects operations against a test whose lifecycle
// state does not admit them. The operation performs no mutation.
var ErrInvalidState = errors.New("invalid test state")

type AnalysisStatus string

const (
	// AnalysisCompleted: a significant winner was found and persisted.
	AnalysisCompleted AnalysisStatus = "completed"
	// AnalysisInconclusive: enough data, no significant pair; the test
	// keeps running. An expected state, not a failure.
	AnalysisInconclusive AnalysisStatus = "inconclusive"
	// AnalysisInsufficientData: some variation is below the sample
	// floor; the caller should render this as "waiting".
	AnalysisInsufficientData AnalysisStatus = "insufficient_data"
)

// PairwiseResult is one variation-vs-variation comparison.
type PairwiseResult struct {
	VariationA string     `json:"variation_a"`
	VariationB string     `json:"variation_b"`
	Result     Comparison `json:"result"`
}

// AnalysisResult is the structured outcome of analyzing a running
// test. Insufficient data and inconclusive are statuses of their own,
// distinguishable from both success and failure.
type AnalysisResult struct {
	Status      AnalysisStatus   `json:"status"`
	Message     string           `json:"message,omitempty"`
	Winner      string           `json:"winner,omitempty"`
	Significant bool             `json:"significant"`
	Details     *Comparison      `json:"details,omitempty"`
	Pairs       []PairwiseResult `json:"pairs,omitempty"`
}

// CreateTestInput carries the A/B boundary's create parameters.
type CreateTestInput struct {
	CampaignID    string
	Name          string
	Description   string
	SuccessMetric string
	MinSampleSize int64
	Confidence    float64
	Variations    []string
}

// ABTestService sequences the test lifecycle and the pairwise
// significance analysis.
type ABTestService struct {
	tests     storage.ABTestRepo
	campaigns storage.CampaignRepo
	locker    Locker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewABTestService(tests storage.ABTestRepo, campaigns storage.CampaignRepo, locker Locker, m *metrics.Metrics, logger *zap.Logger) *ABTestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ABTestService{tests: tests, campaigns: campaigns, locker: locker, metrics: m, logger: logger}
}

// CreateTest creates a draft test with its variations.
func (s *ABTestService) CreateTest(ctx context.Context, in CreateTestInput) (*models.ABTest, error) {
	if _, err := s.campaigns.GetByID(ctx, in.CampaignID); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", in.CampaignID, err)
	}

	metric, err := models.ParseSuccessMetric(in.SuccessMetric)
	if err != nil {
		return nil, err
	}
	if in.MinSampleSize <= 0 {
		in.MinSampleSize = 1000
	}
	if in.Confidence <= 0 {
		in.Confidence = 95
	}

	now := time.Now().UTC()
	t := &models.ABTest{
		ID:              uuid.NewString(),
		CampaignID:      in.CampaignID,
		Name:            in.Name,
		Description:     in.Description,
		Status:          models.ABTestStatusDraft,
		SuccessMetric:   metric,
		ConfidenceLevel: in.Confidence,
		MinSampleSize:   in.MinSampleSize,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, name := range in.Variations {
		t.Variations = append(t.Variations, &models.ABTestVariation{
			ID:        uuid.NewString(),
			TestID:    t.ID,
			Name:      name,
			CreatedAt: now,
		})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, v := range t.Variations {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create ab test: %w", err)
	}
	s.logger.Info("ab test created",
		zap.String("test_id", t.ID),
		zap.String("campaign_id", t.CampaignID),
		zap.Int("variations", len(t.Variations)),
	)
	return t, nil
}

// GetTest returns a test with variations loaded.
func (s *ABTestService) GetTest(ctx context.Context, id string) (*models.ABTest, error) {
	return s.tests.GetByID(ctx, id)
}

// ListTests returns tests for a campaign, or all when campaignID is
// empty.
func (s *ABTestService) ListTests(ctx context.Context, campaignID string) ([]*models.ABTest, error) {
	if campaignID == "" {
		return s.tests.ListAll(ctx)
	}
	return s.tests.ListByCampaign(ctx, campaignID)
}

// StartTest moves a draft or paused test to running. A completed test
// is terminal: re-running requires a new test.
func (s *ABTestService) StartTest(ctx context.Context, id string) (*models.ABTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.CanStart() {
		return nil, fmt.Errorf("%w: cannot start a %s test", ErrInvalidState, t.Status)
	}
	if len(t.Variations) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 variations to start test", ErrInvalidState)
	}

	now := time.Now().UTC()
	t.Status = models.ABTestStatusRunning
	if t.StartDate == nil {
		t.StartDate = &now
	}
	t.UpdatedAt = now
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to start test: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TestsStarted.Inc()
	}
	s.logger.Info("ab test started", zap.String("test_id", t.ID))
	return t, nil
}

// PauseTest moves a running test to paused.
func (s *ABTestService) PauseTest(ctx context.Context, id string) (*models.ABTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.ABTestStatusRunning {
		return nil, fmt.Errorf("%w: cannot pause a %s test", ErrInvalidState, t.Status)
	}
	t.Status = models.ABTestStatusPaused
	t.UpdatedAt = time.Now().UTC()
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to pause test: %w", err)
	}
	return t, nil
}

// UpdateVariationCounters replaces one variation's counters wholesale,
// the same upsert contract the metric ingestion boundary uses.
func (s *ABTestService) UpdateVariationCounters(ctx context.Context, testID, name string, c models.Counters) error {
	if err := c.Validate(); err != nil {
		return err
	}
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	for _, v := range t.Variations {
		if v.Name == name {
			v.Counters = c
			return s.tests.UpsertVariation(ctx, v)
		}
	}
	return fmt.Errorf("variation %s: %w", name, storage.ErrNotFound)
}

// Analyze compares every unordered pair of variations on the test's
// success metric. Only the first pair in name order can decide the
// test: if it is significant its winner is persisted and the test
// completes, otherwise the result is inconclusive and the test keeps
// running. Later pairs are reported for inspection but never decide,
// even when significant.
//
// The first-pair rule is exact for the common two-arm case. With three
// or more arms it is a known simplification; changing it is a product
// decision, not a code one.
func (s *ABTestService) Analyze(ctx context.Context, id string) (*AnalysisResult, error) {
	release, err := s.locker.Acquire(ctx, "abtest:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.ABTestStatusRunning {
		return nil, fmt.Errorf("%w: test is not running", ErrInvalidState)
	}

	// Comparisons are ordered by declared name, not insertion order.
	variations := make([]*models.ABTestVariation, len(t.Variations))
	copy(variations, t.Variations)
	sort.Slice(variations, func(i, j int) bool { return variations[i].Name < variations[j].Name })

	// The sample floor is checked before the arm count so an
	// underpowered test always reads as "waiting", never as a rejected
	// operation.
	for _, v := range variations {
		if v.Impressions < t.MinSampleSize {
			if s.metrics != nil {
				s.metrics.RecordAnalysis(string(AnalysisInsufficientData))
			}
			return &AnalysisResult{
				Status: AnalysisInsufficientData,
				Message: fmt.Sprintf("variation %s has %d impressions, need at least %d per variation",
					v.Name, v.Impressions, t.MinSampleSize),
			}, nil
		}
	}

	if len(variations) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 variations", ErrInvalidState)
	}

	alpha := t.SignificanceLevel()
	var pairs []PairwiseResult
	for i := 0; i < len(variations); i++ {
		for j := i + 1; j < len(variations); j++ {
			cmp := Compare(variations[i].Counters, variations[j].Counters, t.SuccessMetric, alpha)
			pairs = append(pairs, PairwiseResult{
				VariationA: variations[i].Name,
				VariationB: variations[j].Name,
				Result:     cmp,
			})
		}
	}

	first := pairs[0]
	if !first.Result.Significant {
		if s.metrics != nil {
			s.metrics.RecordAnalysis(string(AnalysisInconclusive))
		}
		return &AnalysisResult{
			Status:  AnalysisInconclusive,
			Message: "no statistically significant winner yet",
			Pairs:   pairs,
		}, nil
	}

	winner := first.VariationA
	if first.Result.Winner == "B" {
		winner = first.VariationB
	}

	now := time.Now().UTC()
	p := first.Result.PValue
	t.Winner = winner
	t.IsSignificant = true
	t.PValue = &p
	t.Status = models.ABTestStatusCompleted
	t.EndDate = &now
	t.UpdatedAt = now
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist test winner: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordAnalysis(string(AnalysisCompleted))
	}
	s.logger.Info("ab test completed",
		zap.String("test_id", t.ID),
		zap.String("winner", winner),
		zap.Float64("p_value", p),
	)

	details := first.Result
	return &AnalysisResult{
		Status:      AnalysisCompleted,
		Winner:      winner,
		Significant: true,
		Details:     &details,
		Pairs:       pairs,
	}, nil
}

// Advise turns an analysis outcome into wait / act / extend guidance
// for the test-management UI.
func (s *ABTestService) Advise(res *AnalysisResult) []models.TestAdvice {
	if res == nil {
		return nil
	}
	switch res.Status {
	case AnalysisInsufficientData:
		return []models.TestAdvice{{
			Type:     "wait",
			Message:  "Continue running the test until minimum sample size is reached",
			Priority: models.PriorityHigh,
		}}
	case AnalysisCompleted:
		improvement := 0.0
		if res.Details != nil {
			improvement = res.Details.Improvement
		}
		return []models.TestAdvice{{
			Type: "action",
			Message: fmt.Sprintf("Variation %s is the clear winner with %.1f%% improvement. Implement this variation.",
				res.Winner, improvement),
			Priority: models.PriorityHigh,
		}}
	case AnalysisInconclusive:
		return []models.TestAdvice{{
			Type:     "extend",
			Message:  "No clear winner yet. Consider running the test longer or increasing traffic.",
			Priority: models.PriorityMedium,
		}}
	}
	return nil
}
