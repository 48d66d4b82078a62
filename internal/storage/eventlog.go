package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseIngestLog implements IngestLog on a ClickHouse connection.
// Rows are append-only; the table keeps the full mutation history of
// every (campaign, date) record for offline analysis, not the current
// state.
type ClickHouseIngestLog struct {
	conn driver.Conn
}

func NewClickHouseIngestLog(conn driver.Conn) *ClickHouseIngestLog {
	return &ClickHouseIngestLog{conn: conn}
}

// EnsureSchema creates the event table if it does not exist.
func (l *ClickHouseIngestLog) EnsureSchema(ctx context.Context) error {
	err := l.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ingest_events (
			campaign_id String,
			date        Date,
			impressions Int64,
			clicks      Int64,
			conversions Int64,
			spend       Float64,
			op          LowCardinality(String),
			ingested_at DateTime64(3)
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(ingested_at)
		ORDER BY (campaign_id, date, ingested_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ingest_events table: %w", err)
	}
	return nil
}

// Append writes one event. Async insert trades read-your-write for
// throughput, which an audit log can afford.
func (l *ClickHouseIngestLog) Append(ctx context.Context, ev IngestEvent) error {
	err := l.conn.AsyncInsert(ctx, `
		INSERT INTO ingest_events (campaign_id, date, impressions, clicks, conversions, spend, op, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, false,
		ev.CampaignID, ev.Date, ev.Impressions, ev.Clicks, ev.Conversions,
		ev.Spend, ev.Op, ev.IngestedAt)
	if err != nil {
		return fmt.Errorf("failed to append ingest event: %w", err)
	}
	return nil
}
