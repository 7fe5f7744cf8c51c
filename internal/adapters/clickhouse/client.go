package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/logger"
)

// Client is a thin connection wrapper for the analytics sink
type Client struct {
	db *sqlx.DB
}

// New connects to ClickHouse and creates the metric tables
func New(cfg *config.ClickHouseConfig) (*Client, error) {
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse dsn: %w", err)
	}

	db := sqlx.NewDb(clickhouse.OpenDB(opts), "clickhouse")
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	c := &Client{db: db}
	if err := c.ensureTables(ctx); err != nil {
		return nil, err
	}

	logger.Info("clickhouse client initialized")
	return c, nil
}

func (c *Client) ensureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tool_usage (
			ts DateTime,
			agent_id String,
			tool String,
			success UInt8,
			execution_ms Int64
		) ENGINE = MergeTree()
		ORDER BY (ts, tool)`,
		`CREATE TABLE IF NOT EXISTS gateway_stats (
			ts DateTime,
			total Int64,
			successful Int64,
			failed Int64,
			cached Int64,
			rate_limited Int64,
			cache_entries Int64,
			cache_bytes Int64,
			hit_rate Float64
		) ENGINE = MergeTree()
		ORDER BY ts`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create clickhouse table: %w", err)
		}
	}
	return nil
}

// InsertBatch writes rows into one table in a single statement
func (c *Client) InsertBatch(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	columnCount := len(rows[0])
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*columnCount)
	for i, row := range rows {
		if len(row) != columnCount {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), columnCount)
		}
		marks := make([]string, columnCount)
		for j := range marks {
			marks[j] = "?"
		}
		placeholders[i] = "(" + strings.Join(marks, ", ") + ")"
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s VALUES %s", table, strings.Join(placeholders, ", "))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clickhouse insert failed: %w", err)
	}

	logger.Debug("clickhouse batch insert",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}
