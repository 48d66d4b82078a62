package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/config"
	"github.com/adpulse/campaign-analytics/internal/insights"
	"github.com/adpulse/campaign-analytics/internal/models"
)

// newTestServer wires the full handler against the in-memory backend.
// Auth, rate limiting and metrics are disabled so requests need no
// credentials and no Prometheus registry is touched.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Auth:      config.AuthConfig{Enabled: false},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: false},
		Analytics: config.AnalyticsConfig{
			RevenuePerConversion: 50,
			MaxRecommendations:   6,
			DefaultMinSampleSize: 1000,
			DefaultConfidence:    95,
		},
	}
	return NewServer(&Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func createCampaign(t *testing.T, h http.Handler) models.Campaign {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/campaigns",
		`{"user_id":"u1","title":"Summer Sale","platform":"instagram","budget":"1000","is_active":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var c models.Campaign
	decode(t, rec, &c)
	require.NotEmpty(t, c.ID)
	return c
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestCampaignLifecycle(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodGet, "/campaigns/"+c.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Campaign
	decode(t, rec, &got)
	assert.Equal(t, "Summer Sale", got.Title)

	rec = doJSON(t, h, http.MethodGet, "/campaigns?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Campaign
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	rec = doJSON(t, h, http.MethodGet, "/campaigns?user_id=someone-else", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	decode(t, rec, &list)
	assert.Empty(t, list)

	rec = doJSON(t, h, http.MethodDelete, "/campaigns/"+c.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/campaigns/"+c.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaignValidation(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/campaigns", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title")

	rec = doJSON(t, h, http.MethodPost, "/campaigns", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndSummary(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodPost, "/analytics/ingest",
		`{"campaign_id":"`+c.ID+`","date":"2026-01-05","impressions":1000,"clicks":40,"conversions":4,"spend":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var record models.MetricRecord
	decode(t, rec, &record)
	assert.Equal(t, 4.0, record.CTR)
	assert.Equal(t, 2.5, record.CPC)

	rec = doJSON(t, h, http.MethodGet, "/campaigns/"+c.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum models.CampaignSummary
	decode(t, rec, &sum)
	assert.Equal(t, int64(1000), sum.TotalImpressions)
	assert.Equal(t, 4.0, sum.AvgCTR)

	// Re-ingesting a day replaces it.
	rec = doJSON(t, h, http.MethodPost, "/analytics/ingest",
		`{"campaign_id":"`+c.ID+`","date":"2026-01-05","impressions":500,"clicks":20,"conversions":2,"spend":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/campaigns/"+c.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sum)
	assert.Equal(t, int64(500), sum.TotalImpressions)

	rec = doJSON(t, h, http.MethodDelete,
		"/analytics/ingest?campaign_id="+c.ID+"&date=2026-01-05", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIngestValidation(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodPost, "/analytics/ingest",
		`{"campaign_id":"`+c.ID+`","date":"05-01-2026","impressions":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "YYYY-MM-DD")

	rec = doJSON(t, h, http.MethodPost, "/analytics/ingest",
		`{"campaign_id":"`+c.ID+`","date":"2026-01-05","impressions":10,"clicks":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/analytics/ingest",
		`{"campaign_id":"nope","date":"2026-01-05","impressions":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestABTestFullFlow(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodPost, "/abtests",
		`{"campaign_id":"`+c.ID+`","name":"headline test","variations":["A","B"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var test models.ABTest
	decode(t, rec, &test)
	assert.Equal(t, models.ABTestStatusDraft, test.Status)
	assert.Equal(t, int64(1000), test.MinSampleSize)

	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/variations",
		`{"name":"A","impressions":8500,"clicks":340}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/variations",
		`{"name":"B","impressions":8500,"clicks":468}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Analysis *insights.AnalysisResult `json:"analysis"`
		Advice   []models.TestAdvice      `json:"advice"`
	}
	decode(t, rec, &res)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, insights.AnalysisCompleted, res.Analysis.Status)
	assert.Equal(t, "B", res.Analysis.Winner)
	require.NotEmpty(t, res.Advice)
	assert.Equal(t, "action", res.Advice[0].Type)

	// The decision is persisted and terminal.
	rec = doJSON(t, h, http.MethodGet, "/abtests/"+test.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &test)
	assert.Equal(t, models.ABTestStatusCompleted, test.Status)
	assert.Equal(t, "B", test.Winner)

	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/analyze", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestABTestLifecycleConflicts(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodPost, "/abtests",
		`{"campaign_id":"`+c.ID+`","name":"t","variations":["A","B"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var test models.ABTest
	decode(t, rec, &test)

	// Draft tests cannot be analyzed or paused.
	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/analyze", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/abtests/"+test.ID+"/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestABTestValidation(t *testing.T) {
	h := newTestServer(t)
	c := createCampaign(t, h)

	rec := doJSON(t, h, http.MethodPost, "/abtests",
		`{"campaign_id":"`+c.ID+`","variations":["A","B"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")

	rec = doJSON(t, h, http.MethodPost, "/abtests",
		`{"campaign_id":"`+c.ID+`","name":"t","success_metric":"bounce_rate","variations":["A","B"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/abtests",
		`{"campaign_id":"missing","name":"t","variations":["A","B"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/abtests/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeeklyReportEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/reports/weekly?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report insights.WeeklyReport
	decode(t, rec, &report)
	assert.Equal(t, "u1", report.UserID)
	assert.NotEmpty(t, report.Recommendations)
	assert.NotEmpty(t, report.NextSteps)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPut, "/campaigns", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/reports/weekly", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRouteDisabled(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRejectsWithoutKey(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			Enabled:   true,
			MasterKey: "secret-key",
			SkipPaths: []string{"/health"},
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: false},
		Analytics: config.AnalyticsConfig{
			RevenuePerConversion: 50,
			MaxRecommendations:   6,
			DefaultMinSampleSize: 1000,
			DefaultConfidence:    95,
		},
	}
	h := NewServer(&Dependencies{Config: cfg, Logger: zap.NewNop()})

	rec := doJSON(t, h, http.MethodGet, "/campaigns", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Skip paths stay open.
	rec = doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/campaigns", strings.NewReader(""))
	req.Header.Set("X-API-Key", "secret-key")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
