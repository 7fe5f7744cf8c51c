package metrics

import (
	"context"
	"time"

	"github.com/twquant/twse-agents/internal/adapters/clickhouse"
	"github.com/twquant/twse-agents/internal/market"
)

// Logger batches tool-usage and gateway counters into ClickHouse. It
// satisfies the toolkit's metrics sink; all writes are fire-and-forget.
type Logger struct {
	client  *clickhouse.Client
	tools   *clickhouse.BatchWriter
	gateway *clickhouse.BatchWriter
}

// NewLogger creates the metrics sink over one ClickHouse client
func NewLogger(client *clickhouse.Client) *Logger {
	return &Logger{
		client:  client,
		tools:   clickhouse.NewBatchWriter(client, "tool_usage", 100, 10*time.Second),
		gateway: clickhouse.NewBatchWriter(client, "gateway_stats", 50, 30*time.Second),
	}
}

// LogToolUsage records one tool execution
func (l *Logger) LogToolUsage(ctx context.Context, toolName string, params any, success bool, executionTimeMs int) {
	agentID := ""
	if p, ok := params.(map[string]any); ok {
		if id, ok := p["agent_id"].(string); ok {
			agentID = id
		}
	}

	successFlag := uint8(0)
	if success {
		successFlag = 1
	}
	l.tools.Add([]any{time.Now().UTC(), agentID, toolName, successFlag, int64(executionTimeMs)})
}

// RecordGatewayStats records one gateway counter snapshot
func (l *Logger) RecordGatewayStats(stats market.Stats) {
	l.gateway.Add([]any{
		time.Now().UTC(),
		stats.Total,
		stats.Successful,
		stats.Failed,
		stats.Cached,
		stats.RateLimited,
		int64(stats.CacheEntries),
		stats.CacheBytes,
		stats.HitRate,
	})
}

// Close flushes and stops both writers
func (l *Logger) Close() error {
	if err := l.tools.Close(); err != nil {
		return err
	}
	return l.gateway.Close()
}
