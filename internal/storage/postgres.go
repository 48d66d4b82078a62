package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adpulse/campaign-analytics/internal/models"
)

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

func (r *PostgresCampaignRepo) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	var startDate, endDate *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, platform, budget, is_active,
		       start_date, end_date, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Title, &c.Platform, &c.Budget, &c.IsActive,
		&startDate, &endDate, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	if startDate != nil {
		c.StartDate = *startDate
	}
	if endDate != nil {
		c.EndDate = *endDate
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) ListAll(ctx context.Context) ([]*models.Campaign, error) {
	return r.list(ctx, `
		SELECT id, user_id, title, platform, budget, is_active,
		       start_date, end_date, created_at, updated_at
		FROM campaigns ORDER BY created_at DESC
	`)
}

func (r *PostgresCampaignRepo) ListByUser(ctx context.Context, userID string) ([]*models.Campaign, error) {
	return r.list(ctx, `
		SELECT id, user_id, title, platform, budget, is_active,
		       start_date, end_date, created_at, updated_at
		FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (r *PostgresCampaignRepo) list(ctx context.Context, query string, args ...any) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		var startDate, endDate *time.Time

		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Platform, &c.Budget, &c.IsActive,
			&startDate, &endDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if startDate != nil {
			c.StartDate = *startDate
		}
		if endDate != nil {
			c.EndDate = *endDate
		}
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

func (r *PostgresCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaigns (id, user_id, title, platform, budget, is_active,
		                       start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			title = EXCLUDED.title,
			platform = EXCLUDED.platform,
			budget = EXCLUDED.budget,
			is_active = EXCLUDED.is_active,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.UserID, c.Title, c.Platform, c.Budget, c.IsActive,
		nullTime(c.StartDate), nullTime(c.EndDate), c.CreatedAt, c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}
	return nil
}

// Delete removes the campaign and cascades to its metric records,
// summary, tests and variations in one transaction.
func (r *PostgresCampaignRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM ab_test_variations WHERE test_id IN (SELECT id FROM ab_tests WHERE campaign_id = $1)`,
		`DELETE FROM ab_tests WHERE campaign_id = $1`,
		`DELETE FROM campaign_summaries WHERE campaign_id = $1`,
		`DELETE FROM metric_records WHERE campaign_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("failed to cascade campaign delete: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return tx.Commit(ctx)
}

// PostgresMetricRepo implements MetricRepo using PostgreSQL. The
// (campaign_id, date) pair carries a unique constraint; Upsert rides on
// it.
type PostgresMetricRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMetricRepo(pool *pgxpool.Pool) *PostgresMetricRepo {
	return &PostgresMetricRepo{pool: pool}
}

func (r *PostgresMetricRepo) Upsert(ctx context.Context, rec *models.MetricRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO metric_records (id, campaign_id, date, impressions, clicks, conversions,
		                            spend, ctr, cpc, cpa, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (campaign_id, date) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			spend = EXCLUDED.spend,
			ctr = EXCLUDED.ctr,
			cpc = EXCLUDED.cpc,
			cpa = EXCLUDED.cpa,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.CampaignID, rec.Day(), rec.Impressions, rec.Clicks, rec.Conversions,
		rec.Spend, rec.CTR, rec.CPC, rec.CPA, rec.CreatedAt, rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert metric record: %w", err)
	}
	return nil
}

func (r *PostgresMetricRepo) Delete(ctx context.Context, campaignID string, date time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM metric_records WHERE campaign_id = $1 AND date = $2
	`, campaignID, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to delete metric record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("metric record: %w", ErrNotFound)
	}
	return nil
}

func (r *PostgresMetricRepo) Get(ctx context.Context, campaignID string, date time.Time) (*models.MetricRecord, error) {
	var rec models.MetricRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, campaign_id, date, impressions, clicks, conversions,
		       spend, ctr, cpc, cpa, created_at, updated_at
		FROM metric_records WHERE campaign_id = $1 AND date = $2
	`, campaignID, date.UTC().Truncate(24*time.Hour)).Scan(
		&rec.ID, &rec.CampaignID, &rec.Date, &rec.Impressions, &rec.Clicks, &rec.Conversions,
		&rec.Spend, &rec.CTR, &rec.CPC, &rec.CPA, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("metric record: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresMetricRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*models.MetricRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, date, impressions, clicks, conversions,
		       spend, ctr, cpc, cpa, created_at, updated_at
		FROM metric_records WHERE campaign_id = $1 ORDER BY date
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric records: %w", err)
	}
	defer rows.Close()

	var recs []*models.MetricRecord
	for rows.Next() {
		var rec models.MetricRecord
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.Date, &rec.Impressions, &rec.Clicks, &rec.Conversions,
			&rec.Spend, &rec.CTR, &rec.CPC, &rec.CPA, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// PostgresSummaryRepo implements SummaryRepo using PostgreSQL.
type PostgresSummaryRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSummaryRepo(pool *pgxpool.Pool) *PostgresSummaryRepo {
	return &PostgresSummaryRepo{pool: pool}
}

func (r *PostgresSummaryRepo) Get(ctx context.Context, campaignID string) (*models.CampaignSummary, error) {
	var s models.CampaignSummary
	err := r.pool.QueryRow(ctx, `
		SELECT id, campaign_id, total_impressions, total_clicks, total_conversions,
		       total_spend, avg_ctr, avg_cpc, avg_conversion_rate, roas,
		       performance_score, last_updated
		FROM campaign_summaries WHERE campaign_id = $1
	`, campaignID).Scan(
		&s.ID, &s.CampaignID, &s.TotalImpressions, &s.TotalClicks, &s.TotalConversions,
		&s.TotalSpend, &s.AvgCTR, &s.AvgCPC, &s.AvgConversionRate, &s.ROAS,
		&s.PerformanceScore, &s.LastUpdated)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &s, nil
}

// Replace overwrites the campaign's summary row. The campaign_id unique
// constraint makes the overwrite atomic; readers see either the old row
// or the new one, never a partial mix.
func (r *PostgresSummaryRepo) Replace(ctx context.Context, s *models.CampaignSummary) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaign_summaries (id, campaign_id, total_impressions, total_clicks,
		                                total_conversions, total_spend, avg_ctr, avg_cpc,
		                                avg_conversion_rate, roas, performance_score, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (campaign_id) DO UPDATE SET
			total_impressions = EXCLUDED.total_impressions,
			total_clicks = EXCLUDED.total_clicks,
			total_conversions = EXCLUDED.total_conversions,
			total_spend = EXCLUDED.total_spend,
			avg_ctr = EXCLUDED.avg_ctr,
			avg_cpc = EXCLUDED.avg_cpc,
			avg_conversion_rate = EXCLUDED.avg_conversion_rate,
			roas = EXCLUDED.roas,
			performance_score = EXCLUDED.performance_score,
			last_updated = EXCLUDED.last_updated
	`, s.ID, s.CampaignID, s.TotalImpressions, s.TotalClicks,
		s.TotalConversions, s.TotalSpend, s.AvgCTR, s.AvgCPC,
		s.AvgConversionRate, s.ROAS, s.PerformanceScore, s.LastUpdated)

	if err != nil {
		return fmt.Errorf("failed to replace summary: %w", err)
	}
	return nil
}

func (r *PostgresSummaryRepo) Delete(ctx context.Context, campaignID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM campaign_summaries WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	return nil
}

// PostgresABTestRepo implements ABTestRepo using PostgreSQL.
type PostgresABTestRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresABTestRepo(pool *pgxpool.Pool) *PostgresABTestRepo {
	return &PostgresABTestRepo{pool: pool}
}

const abTestColumns = `id, campaign_id, name, description, status, success_metric,
	confidence_level, min_sample_size, winner, is_significant, p_value,
	start_date, end_date, created_at, updated_at`

func (r *PostgresABTestRepo) Create(ctx context.Context, t *models.ABTest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ab_tests (`+abTestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, t.ID, t.CampaignID, t.Name, t.Description, t.Status, t.SuccessMetric,
		t.ConfidenceLevel, t.MinSampleSize, nullString(t.Winner), t.IsSignificant, t.PValue,
		t.StartDate, t.EndDate, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ab test: %w", err)
	}

	for _, v := range t.Variations {
		if err := upsertVariation(ctx, tx, v); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresABTestRepo) GetByID(ctx context.Context, id string) (*models.ABTest, error) {
	t, err := scanABTest(r.pool.QueryRow(ctx, `
		SELECT `+abTestColumns+` FROM ab_tests WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ab test %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ab test: %w", err)
	}

	t.Variations, err = r.variationsByTest(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresABTestRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*models.ABTest, error) {
	return r.listTests(ctx, `
		SELECT `+abTestColumns+` FROM ab_tests WHERE campaign_id = $1 ORDER BY created_at DESC
	`, campaignID)
}

func (r *PostgresABTestRepo) ListAll(ctx context.Context) ([]*models.ABTest, error) {
	return r.listTests(ctx, `
		SELECT `+abTestColumns+` FROM ab_tests ORDER BY created_at DESC
	`)
}

func (r *PostgresABTestRepo) listTests(ctx context.Context, query string, args ...any) ([]*models.ABTest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ab tests: %w", err)
	}
	defer rows.Close()

	var tests []*models.ABTest
	for rows.Next() {
		t, err := scanABTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tests {
		if t.Variations, err = r.variationsByTest(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return tests, nil
}

func (r *PostgresABTestRepo) Update(ctx context.Context, t *models.ABTest) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ab_tests SET
			name = $2,
			description = $3,
			status = $4,
			success_metric = $5,
			confidence_level = $6,
			min_sample_size = $7,
			winner = $8,
			is_significant = $9,
			p_value = $10,
			start_date = $11,
			end_date = $12,
			updated_at = $13
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.Status, t.SuccessMetric,
		t.ConfidenceLevel, t.MinSampleSize, nullString(t.Winner), t.IsSignificant, t.PValue,
		t.StartDate, t.EndDate, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ab test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ab test %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *PostgresABTestRepo) UpsertVariation(ctx context.Context, v *models.ABTestVariation) error {
	return upsertVariation(ctx, r.pool, v)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx so variation
// upserts can run standalone or inside the Create transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertVariation(ctx context.Context, db execer, v *models.ABTestVariation) error {
	_, err := db.Exec(ctx, `
		INSERT INTO ab_test_variations (id, test_id, name, impressions, clicks,
		                                conversions, spend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (test_id, name) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			spend = EXCLUDED.spend
	`, v.ID, v.TestID, v.Name, v.Impressions, v.Clicks, v.Conversions, v.Spend, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert variation: %w", err)
	}
	return nil
}

func (r *PostgresABTestRepo) variationsByTest(ctx context.Context, testID string) ([]*models.ABTestVariation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, test_id, name, impressions, clicks, conversions, spend, created_at
		FROM ab_test_variations WHERE test_id = $1 ORDER BY name
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variations: %w", err)
	}
	defer rows.Close()

	var variations []*models.ABTestVariation
	for rows.Next() {
		var v models.ABTestVariation
		if err := rows.Scan(&v.ID, &v.TestID, &v.Name, &v.Impressions, &v.Clicks,
			&v.Conversions, &v.Spend, &v.CreatedAt); err != nil {
			return nil, err
		}
		variations = append(variations, &v)
	}
	return variations, rows.Err()
}

func scanABTest(row pgx.Row) (*models.ABTest, error) {
	var t models.ABTest
	var winner *string
	err := row.Scan(&t.ID, &t.CampaignID, &t.Name, &t.Description, &t.Status, &t.SuccessMetric,
		&t.ConfidenceLevel, &t.MinSampleSize, &winner, &t.IsSignificant, &t.PValue,
		&t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		t.Winner = *winner
	}
	return &t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
