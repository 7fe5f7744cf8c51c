package workers

import (
	"context"

	"github.com/twquant/twse-agents/internal/market"
)

// StatsSink receives periodic gateway counter snapshots
type StatsSink interface {
	RecordGatewayStats(stats market.Stats)
}

// GatewayStatsWorker ships gateway counters to the analytics sink
type GatewayStatsWorker struct {
	gateway *market.Gateway
	sink    StatsSink
}

// NewGatewayStatsWorker creates the stats worker
func NewGatewayStatsWorker(gateway *market.Gateway, sink StatsSink) *GatewayStatsWorker {
	return &GatewayStatsWorker{gateway: gateway, sink: sink}
}

// Name implements worker.Worker
func (w *GatewayStatsWorker) Name() string {
	return "gateway_stats"
}

// Run records one snapshot
func (w *GatewayStatsWorker) Run(ctx context.Context) error {
	w.sink.RecordGatewayStats(w.gateway.Snapshot())
	return nil
}
