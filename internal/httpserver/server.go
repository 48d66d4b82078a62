package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adpulse/campaign-analytics/internal/config"
	"github.com/adpulse/campaign-analytics/internal/database"
	"github.com/adpulse/campaign-analytics/internal/insights"
	"github.com/adpulse/campaign-analytics/internal/metrics"
	"github.com/adpulse/campaign-analytics/internal/middleware"
	"github.com/adpulse/campaign-analytics/internal/models"
	"github.com/adpulse/campaign-analytics/internal/storage"
)

const dateLayout = "2006-01-02"

// Dependencies holds all external dependencies for the server. DB,
// Redis and ClickHouse are optional; nil falls back to in-process
// equivalents.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers and the analytics services.
type Server struct {
	campaigns      storage.CampaignRepo
	summaryService *insights.SummaryService
	abtestService  *insights.ABTestService
	reportService  *insights.ReportService
	logger         *zap.Logger
	config         *config.Config
	metrics        *metrics.Metrics
}

// NewServer constructs an http.Handler with all routes registered and
// the middleware chain applied.
func NewServer(deps *Dependencies) http.Handler {
	var (
		cRepo  storage.CampaignRepo
		mRepo  storage.MetricRepo
		sRepo  storage.SummaryRepo
		tRepo  storage.ABTestRepo
		evLog  storage.IngestLog
		locker insights.Locker
	)

	if deps.DB != nil {
		cRepo = storage.NewPostgresCampaignRepo(deps.DB.Pool)
		mRepo = storage.NewPostgresMetricRepo(deps.DB.Pool)
		sRepo = storage.NewPostgresSummaryRepo(deps.DB.Pool)
		tRepo = storage.NewPostgresABTestRepo(deps.DB.Pool)
	} else {
		cRepo = storage.NewInMemoryCampaignRepo()
		mRepo = storage.NewInMemoryMetricRepo()
		sRepo = storage.NewInMemorySummaryRepo()
		tRepo = storage.NewInMemoryABTestRepo()
	}

	if deps.ClickHouse != nil {
		evLog = storage.NewClickHouseIngestLog(deps.ClickHouse.Conn)
	}

	var cache insights.SummaryCache
	if deps.Redis != nil {
		locker = insights.NewRedisLocker(deps.Redis.Client, deps.Config.Redis.LockTTL)
		cache = insights.NewRedisSummaryCache(deps.Redis.Client)
	} else {
		locker = insights.NewInMemoryLocker()
	}

	summarySvc := insights.NewSummaryService(
		cRepo, mRepo, sRepo, evLog, cache, locker, deps.Metrics, deps.Logger,
		deps.Config.Analytics.RevenuePerConversion,
	)
	abtestSvc := insights.NewABTestService(tRepo, cRepo, locker, deps.Metrics, deps.Logger)
	engine := insights.NewEngine(deps.Config.Analytics.MaxRecommendations)
	reportSvc := insights.NewReportService(
		cRepo, mRepo, summarySvc, tRepo, engine, deps.Metrics, deps.Logger,
		deps.Config.Analytics.RevenuePerConversion,
	)

	s := &Server{
		campaigns:      cRepo,
		summaryService: summarySvc,
		abtestService:  abtestSvc,
		reportService:  reportSvc,
		logger:         deps.Logger,
		config:         deps.Config,
		metrics:        deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Campaign management
	mux.HandleFunc("/campaigns", s.handleCampaigns)
	mux.HandleFunc("/campaigns/", s.handleCampaignByID)

	// Metric ingestion
	mux.HandleFunc("/analytics/ingest", s.handleIngest)

	// A/B testing
	mux.HandleFunc("/abtests", s.handleABTests)
	mux.HandleFunc("/abtests/", s.handleABTestByID)

	// Weekly report
	mux.HandleFunc("/reports/weekly", s.handleWeeklyReport)

	// Middleware chain, outermost first: recovery, logging, rate
	// limit, auth.
	rl := middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger)
	rl.SetMetrics(deps.Metrics)
	auth := middleware.NewAuthMiddleware(deps.Config.Auth, deps.Logger)

	var handler http.Handler = mux
	handler = auth.Handler(handler)
	handler = rl.Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)
	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Campaigns CRUD ----

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var (
			list []*models.Campaign
			err  error
		)
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			list, err = s.campaigns.ListByUser(r.Context(), userID)
		} else {
			list, err = s.campaigns.ListAll(r.Context())
		}
		if err != nil {
			s.logger.Error("failed to list campaigns", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var c models.Campaign
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		now := time.Now().UTC()
		if c.ID == "" {
			c.ID = uuid.NewString()
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		if err := c.Validate(); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.campaigns.Upsert(r.Context(), &c); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, c)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCampaignByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/campaigns/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.campaignResource(w, r, id)
	case "summary":
		if r.Method != http.MethodGet {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sum, err := s.summaryService.GetSummary(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to get summary")
			return
		}
		s.jsonResponse(w, sum)
	case "recompute":
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sum, err := s.summaryService.Recompute(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to recompute summary")
			return
		}
		s.jsonResponse(w, sum)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) campaignResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		c, err := s.campaigns.GetByID(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to get campaign")
			return
		}
		s.jsonResponse(w, c)

	case http.MethodDelete:
		if err := s.campaigns.Delete(r.Context(), id); err != nil {
			s.serviceError(w, err, "failed to delete campaign")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Metric Ingestion ----

type ingestRequest struct {
	CampaignID  string          `json:"campaign_id"`
	Date        string          `json:"date"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			s.errorResponse(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		counters := models.Counters{
			Impressions: req.Impressions,
			Clicks:      req.Clicks,
			Conversions: req.Conversions,
			Spend:       req.Spend,
		}
		if err := counters.Validate(); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := s.summaryService.UpsertMetricRecord(r.Context(), req.CampaignID, date, counters)
		if err != nil {
			s.serviceError(w, err, "failed to ingest metric record")
			return
		}
		s.jsonResponse(w, rec)

	case http.MethodDelete:
		q := r.URL.Query()
		campaignID := q.Get("campaign_id")
		dateStr := q.Get("date")
		if campaignID == "" || dateStr == "" {
			s.errorResponse(w, "campaign_id and date required", http.StatusBadRequest)
			return
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			s.errorResponse(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if err := s.summaryService.DeleteMetricRecord(r.Context(), campaignID, date); err != nil {
			s.serviceError(w, err, "failed to delete metric record")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- A/B Tests ----

type createTestRequest struct {
	CampaignID    string   `json:"campaign_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SuccessMetric string   `json:"success_metric"`
	MinSampleSize int64    `json:"min_sample_size"`
	Confidence    float64  `json:"confidence_level"`
	Variations    []string `json:"variations"`
}

func (s *Server) handleABTests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.abtestService.ListTests(r.Context(), r.URL.Query().Get("campaign_id"))
		if err != nil {
			s.logger.Error("failed to list ab tests", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var req createTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			s.errorResponse(w, "name is required", http.StatusBadRequest)
			return
		}
		if _, err := models.ParseSuccessMetric(req.SuccessMetric); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.MinSampleSize <= 0 {
			req.MinSampleSize = s.config.Analytics.DefaultMinSampleSize
		}
		if req.Confidence <= 0 {
			req.Confidence = s.config.Analytics.DefaultConfidence
		}
		t, err := s.abtestService.CreateTest(r.Context(), insights.CreateTestInput{
			CampaignID:    req.CampaignID,
			Name:          req.Name,
			Description:   req.Description,
			SuccessMetric: req.SuccessMetric,
			MinSampleSize: req.MinSampleSize,
			Confidence:    req.Confidence,
			Variations:    req.Variations,
		})
		if err != nil {
			s.serviceError(w, err, "failed to create ab test")
			return
		}
		w.WriteHeader(http.StatusCreated)
		s.jsonResponse(w, t)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type variationUpdateRequest struct {
	Name        string          `json:"name"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
}

// analyzeResponse bundles the analysis outcome with the advice the
// dashboard renders next to it.
type analyzeResponse struct {
	Analysis *insights.AnalysisResult `json:"analysis"`
	Advice   []models.TestAdvice      `json:"advice"`
}

func (s *Server) handleABTestByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/abtests/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t, err := s.abtestService.GetTest(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to get ab test")
			return
		}
		s.jsonResponse(w, t)

	case "start":
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t, err := s.abtestService.StartTest(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to start ab test")
			return
		}
		s.jsonResponse(w, t)

	case "pause":
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t, err := s.abtestService.PauseTest(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to pause ab test")
			return
		}
		s.jsonResponse(w, t)

	case "analyze":
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := s.abtestService.Analyze(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to analyze ab test")
			return
		}
		s.jsonResponse(w, analyzeResponse{
			Analysis: res,
			Advice:   s.abtestService.Advise(res),
		})

	case "variations":
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req variationUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			s.errorResponse(w, "name is required", http.StatusBadRequest)
			return
		}
		counters := models.Counters{
			Impressions: req.Impressions,
			Clicks:      req.Clicks,
			Conversions: req.Conversions,
			Spend:       req.Spend,
		}
		if err := counters.Validate(); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		err := s.abtestService.UpdateVariationCounters(r.Context(), id, req.Name, counters)
		if err != nil {
			s.serviceError(w, err, "failed to update variation")
			return
		}
		t, err := s.abtestService.GetTest(r.Context(), id)
		if err != nil {
			s.serviceError(w, err, "failed to reload ab test")
			return
		}
		s.jsonResponse(w, t)

	default:
		http.NotFound(w, r)
	}
}

// ---- Weekly Report ----

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.reportService.GenerateWeekly(r.Context(), r.URL.Query().Get("user_id"), time.Now())
	if err != nil {
		s.logger.Error("failed to generate weekly report", zap.Error(err))
		s.errorResponse(w, "failed to generate report", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// serviceError maps service-layer failures onto HTTP statuses: missing
// entities are 404, lifecycle conflicts are 409, everything else is an
// internal error.
func (s *Server) serviceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, insights.ErrInvalidState):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error(logMsg, zap.Error(err))
		s.errorResponse(w, logMsg, http.StatusInternalServerError)
	}
}
