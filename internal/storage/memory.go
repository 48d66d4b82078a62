package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// In-memory implementations of the repositories. They back tests and
// development runs without PostgreSQL; production deployments use the
// Postgres implementations.

func dayKey(d time.Time) string {
	return d.UTC().Format("2006-01-02")
}

// =============================================
// Campaigns
// =============================================

type InMemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
}

func NewInMemoryCampaignRepo() *InMemoryCampaignRepo {
	return &InMemoryCampaignRepo{campaigns: make(map[string]*models.Campaign)}
}

func (r *InMemoryCampaignRepo) ListAll(ctx context.Context) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		cp := *c
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *InMemoryCampaignRepo) ListByUser(ctx context.Context, userID string) ([]*models.Campaign, error) {
	all, _ := r.ListAll(ctx)
	res := all[:0]
	for _, c := range all {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (r *InMemoryCampaignRepo) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *InMemoryCampaignRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return ErrNotFound
	}
	delete(r.campaigns, id)
	return nil
}

// =============================================
// Metric records
// =============================================

type InMemoryMetricRepo struct {
	mu sync.RWMutex
	// campaign id -> day key -> record
	records map[string]map[string]*models.MetricRecord
}

func NewInMemoryMetricRepo() *InMemoryMetricRepo {
	return &InMemoryMetricRepo{records: make(map[string]map[string]*models.MetricRecord)}
}

func (r *InMemoryMetricRepo) Upsert(ctx context.Context, rec *models.MetricRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	days, ok := r.records[rec.CampaignID]
	if !ok {
		days = make(map[string]*models.MetricRecord)
		r.records[rec.CampaignID] = days
	}
	cp := *rec
	days[dayKey(rec.Date)] = &cp
	return nil
}

func (r *InMemoryMetricRepo) Delete(ctx context.Context, campaignID string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	days, ok := r.records[campaignID]
	if !ok {
		return ErrNotFound
	}
	key := dayKey(date)
	if _, ok := days[key]; !ok {
		return ErrNotFound
	}
	delete(days, key)
	return nil
}

func (r *InMemoryMetricRepo) Get(ctx context.Context, campaignID string, date time.Time) (*models.MetricRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if days, ok := r.records[campaignID]; ok {
		if rec, ok := days[dayKey(date)]; ok {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryMetricRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*models.MetricRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	days := r.records[campaignID]
	res := make([]*models.MetricRecord, 0, len(days))
	for _, rec := range days {
		cp := *rec
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

// =============================================
// Summaries
// =============================================

type InMemorySummaryRepo struct {
	mu        sync.RWMutex
	summaries map[string]*models.CampaignSummary
}

func NewInMemorySummaryRepo() *InMemorySummaryRepo {
	return &InMemorySummaryRepo{summaries: make(map[string]*models.CampaignSummary)}
}

func (r *InMemorySummaryRepo) Get(ctx context.Context, campaignID string) (*models.CampaignSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summaries[campaignID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *InMemorySummaryRepo) Replace(ctx context.Context, s *models.CampaignSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.summaries[s.CampaignID] = &cp
	return nil
}

func (r *InMemorySummaryRepo) Delete(ctx context.Context, campaignID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.summaries, campaignID)
	return nil
}

// =============================================
// A/B tests
// =============================================

type InMemoryABTestRepo struct {
	mu    sync.RWMutex
	tests map[string]*models.ABTest
}

func NewInMemoryABTestRepo() *InMemoryABTestRepo {
	return &InMemoryABTestRepo{tests: make(map[string]*models.ABTest)}
}

func copyTest(t *models.ABTest) *models.ABTest {
	cp := *t
	cp.Variations = make([]*models.ABTestVariation, len(t.Variations))
	for i, v := range t.Variations {
		vc := *v
		cp.Variations[i] = &vc
	}
	if t.PValue != nil {
		p := *t.PValue
		cp.PValue = &p
	}
	return &cp
}

func (r *InMemoryABTestRepo) Create(ctx context.Context, t *models.ABTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests[t.ID] = copyTest(t)
	return nil
}

func (r *InMemoryABTestRepo) GetByID(ctx context.Context, id string) (*models.ABTest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTest(t), nil
}

func (r *InMemoryABTestRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*models.ABTest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*models.ABTest
	for _, t := range r.tests {
		if t.CampaignID == campaignID {
			res = append(res, copyTest(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r *InMemoryABTestRepo) ListAll(ctx context.Context) ([]*models.ABTest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.ABTest, 0, len(r.tests))
	for _, t := range r.tests {
		res = append(res, copyTest(t))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r *InMemoryABTestRepo) Update(ctx context.Context, t *models.ABTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tests[t.ID]
	if !ok {
		return ErrNotFound
	}
	upd := copyTest(t)
	if len(upd.Variations) == 0 {
		upd.Variations = cur.Variations
	}
	r.tests[t.ID] = upd
	return nil
}

func (r *InMemoryABTestRepo) UpsertVariation(ctx context.Context, v *models.ABTestVariation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[v.TestID]
	if !ok {
		return ErrNotFound
	}
	for i, cur := range t.Variations {
		if cur.Name == v.Name {
			vc := *v
			vc.ID = cur.ID
			vc.CreatedAt = cur.CreatedAt
			t.Variations[i] = &vc
			return nil
		}
	}
	vc := *v
	t.Variations = append(t.Variations, &vc)
	return nil
}
