package insights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

func newTestABTestService(t *testing.T) (*ABTestService, *storage.InMemoryCampaignRepo) {
	t.Helper()
	campaigns := storage.NewInMemoryCampaignRepo()
	svc := NewABTestService(
		storage.NewInMemoryABTestRepo(),
		campaigns,
		NewInMemoryLocker(),
		nil,
		zap.NewNop(),
	)
	return svc, campaigns
}

func createRunningTest(t *testing.T, svc *ABTestService, campaigns *storage.InMemoryCampaignRepo, minSample int64) *models.ABTest {
	t.Helper()
	ctx := context.Background()
	seedCampaign(t, campaigns, "c1")

	test, err := svc.CreateTest(ctx, CreateTestInput{
		CampaignID:    "c1",
		Name:          "headline test",
		SuccessMetric: "ctr",
		MinSampleSize: minSample,
		Confidence:    95,
		Variations:    []string{"A", "B"},
	})
	require.NoError(t, err)

	test, err = svc.StartTest(ctx, test.ID)
	require.NoError(t, err)
	require.Equal(t, models.ABTestStatusRunning, test.Status)
	return test
}

func TestCreateTestDefaults(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	seedCampaign(t, campaigns, "c1")

	test, err := svc.CreateTest(ctx, CreateTestInput{
		CampaignID: "c1",
		Name:       "defaults",
		Variations: []string{"A", "B"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ABTestStatusDraft, test.Status)
	assert.Equal(t, models.MetricCTR, test.SuccessMetric)
	assert.Equal(t, int64(1000), test.MinSampleSize)
	assert.Equal(t, 95.0, test.ConfidenceLevel)
	assert.Len(t, test.Variations, 2)
	assert.NotEmpty(t, test.ID)
}

func TestCreateTestUnknownCampaign(t *testing.T) {
	svc, _ := newTestABTestService(t)

	_, err := svc.CreateTest(context.Background(), CreateTestInput{
		CampaignID: "missing",
		Name:       "x",
		Variations: []string{"A", "B"},
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartTestRequiresTwoVariations(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	seedCampaign(t, campaigns, "c1")

	test, err := svc.CreateTest(ctx, CreateTestInput{
		CampaignID: "c1",
		Name:       "single arm",
		Variations: []string{"A"},
	})
	require.NoError(t, err)

	_, err = svc.StartTest(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	test := createRunningTest(t, svc, campaigns, 100)

	// Running tests cannot be started again.
	_, err := svc.StartTest(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	paused, err := svc.PauseTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusPaused, paused.Status)

	// Paused tests cannot be paused again but can resume.
	_, err = svc.PauseTest(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	resumed, err := svc.StartTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusRunning, resumed.Status)
}

func TestAnalyzeInsufficientData(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	test := createRunningTest(t, svc, campaigns, 1000)

	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "A", counters(500, 25, 0, 0)))
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "B", counters(1200, 80, 0, 0)))

	res, err := svc.Analyze(ctx, test.ID)
	require.NoError(t, err)

	assert.Equal(t, AnalysisInsufficientData, res.Status)
	assert.Contains(t, res.Message, "A")
	assert.Empty(t, res.Winner)

	// The test keeps running and stays undecided.
	reloaded, err := svc.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusRunning, reloaded.Status)
	assert.Empty(t, reloaded.Winner)
	assert.False(t, reloaded.IsSignificant)
	assert.Nil(t, reloaded.PValue)
}

func TestAnalyzeInconclusive(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	test := createRunningTest(t, svc, campaigns, 1000)

	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "A", counters(1000, 50, 0, 0)))
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "B", counters(1000, 52, 0, 0)))

	res, err := svc.Analyze(ctx, test.ID)
	require.NoError(t, err)

	assert.Equal(t, AnalysisInconclusive, res.Status)
	assert.Empty(t, res.Winner)
	assert.Len(t, res.Pairs, 1)

	reloaded, err := svc.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusRunning, reloaded.Status)
}

func TestAnalyzeCompletesWithWinner(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	test := createRunningTest(t, svc, campaigns, 1000)

	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "A", counters(8500, 340, 0, 0)))
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "B", counters(8500, 468, 0, 0)))

	res, err := svc.Analyze(ctx, test.ID)
	require.NoError(t, err)

	assert.Equal(t, AnalysisCompleted, res.Status)
	assert.Equal(t, "B", res.Winner)
	assert.True(t, res.Significant)
	require.NotNil(t, res.Details)
	assert.Less(t, res.Details.PValue, 0.05)

	reloaded, err := svc.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusCompleted, reloaded.Status)
	assert.Equal(t, "B", reloaded.Winner)
	assert.True(t, reloaded.IsSignificant)
	require.NotNil(t, reloaded.PValue)
	assert.NotNil(t, reloaded.EndDate)

	// Completed is terminal.
	_, err = svc.Analyze(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.StartTest(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAnalyzeOnlyFirstPairDecides(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	seedCampaign(t, campaigns, "c1")

	test, err := svc.CreateTest(ctx, CreateTestInput{
		CampaignID:    "c1",
		Name:          "three arms",
		MinSampleSize: 1000,
		Confidence:    95,
		Variations:    []string{"A", "B", "C"},
	})
	require.NoError(t, err)
	test, err = svc.StartTest(ctx, test.ID)
	require.NoError(t, err)

	// A vs B is a wash; A vs C is clearly significant. Only the first
	// pair may decide, so the test stays inconclusive.
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "A", counters(10000, 500, 0, 0)))
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "B", counters(10000, 510, 0, 0)))
	require.NoError(t, svc.UpdateVariationCounters(ctx, test.ID, "C", counters(10000, 700, 0, 0)))

	res, err := svc.Analyze(ctx, test.ID)
	require.NoError(t, err)

	assert.Equal(t, AnalysisInconclusive, res.Status)
	assert.Empty(t, res.Winner)
	require.Len(t, res.Pairs, 3)
	assert.False(t, res.Pairs[0].Result.Significant)
	// The later significant pair is reported but never acted on.
	assert.True(t, res.Pairs[1].Result.Significant)

	reloaded, err := svc.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ABTestStatusRunning, reloaded.Status)
	assert.Empty(t, reloaded.Winner)
	assert.Nil(t, reloaded.PValue)
}

func TestAnalyzeSampleFloorBeforeArmCount(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewInMemoryABTestRepo()
	campaigns := storage.NewInMemoryCampaignRepo()
	seedCampaign(t, campaigns, "c1")
	svc := NewABTestService(repo, campaigns, NewInMemoryLocker(), nil, zap.NewNop())

	// A one-arm running test can only exist by direct storage writes,
	// but analysis must still gate on the sample floor first.
	require.NoError(t, repo.Create(ctx, &models.ABTest{
		ID:              "t1",
		CampaignID:      "c1",
		Name:            "solo",
		Status:          models.ABTestStatusRunning,
		SuccessMetric:   models.MetricCTR,
		ConfidenceLevel: 95,
		MinSampleSize:   1000,
		Variations: []*models.ABTestVariation{
			{ID: "v1", TestID: "t1", Name: "A", Counters: counters(500, 25, 0, 0)},
		},
	}))

	res, err := svc.Analyze(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, AnalysisInsufficientData, res.Status)
	assert.Contains(t, res.Message, "A")

	// Once the floor is met the missing second arm is the error.
	require.NoError(t, svc.UpdateVariationCounters(ctx, "t1", "A", counters(2000, 100, 0, 0)))
	_, err = svc.Analyze(ctx, "t1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAnalyzeRequiresRunning(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	seedCampaign(t, campaigns, "c1")

	test, err := svc.CreateTest(ctx, CreateTestInput{
		CampaignID: "c1",
		Name:       "draft",
		Variations: []string{"A", "B"},
	})
	require.NoError(t, err)

	_, err = svc.Analyze(ctx, test.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateVariationCountersUnknownName(t *testing.T) {
	ctx := context.Background()
	svc, campaigns := newTestABTestService(t)
	test := createRunningTest(t, svc, campaigns, 100)

	err := svc.UpdateVariationCounters(ctx, test.ID, "C", counters(10, 1, 0, 0))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdvise(t *testing.T) {
	svc, _ := newTestABTestService(t)

	wait := svc.Advise(&AnalysisResult{Status: AnalysisInsufficientData})
	require.Len(t, wait, 1)
	assert.Equal(t, "wait", wait[0].Type)

	extend := svc.Advise(&AnalysisResult{Status: AnalysisInconclusive})
	require.Len(t, extend, 1)
	assert.Equal(t, "extend", extend[0].Type)

	act := svc.Advise(&AnalysisResult{
		Status:  AnalysisCompleted,
		Winner:  "B",
		Details: &Comparison{Improvement: 27.4},
	})
	require.Len(t, act, 1)
	assert.Equal(t, "action", act[0].Type)
	assert.Contains(t, act[0].Message, "B")
}
