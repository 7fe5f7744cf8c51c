package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/agents"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/portfolio"
	"github.com/twquant/twse-agents/pkg/logger"
)

// PortfolioSnapshotWorker periodically values every agent's portfolio and
// publishes the result on the event bus
type PortfolioSnapshotWorker struct {
	repo   *agents.Repository
	engine *portfolio.Engine
	bus    *events.Bus
}

// NewPortfolioSnapshotWorker creates the snapshot worker
func NewPortfolioSnapshotWorker(repo *agents.Repository, engine *portfolio.Engine, bus *events.Bus) *PortfolioSnapshotWorker {
	return &PortfolioSnapshotWorker{repo: repo, engine: engine, bus: bus}
}

// Name implements worker.Worker
func (w *PortfolioSnapshotWorker) Name() string {
	return "portfolio_snapshot"
}

// Run values each agent once. Valuation uses cached quotes only, so an
// agent whose symbols are rate limited is skipped until the next tick.
func (w *PortfolioSnapshotWorker) Run(ctx context.Context) error {
	profiles, err := w.repo.ListAgents(ctx)
	if err != nil {
		return err
	}

	for _, profile := range profiles {
		summary, err := w.engine.Snapshot(ctx, profile.ID, profile.InitialFunds)
		if err != nil {
			logger.Debug("snapshot skipped",
				zap.String("agent_id", profile.ID),
				zap.Error(err),
			)
			continue
		}

		w.bus.Emit(events.PortfolioSnapshotTaken, profile.ID, "", events.PortfolioSnapshotPayload{
			Cash:       summary.Cash,
			TotalValue: summary.TotalValue,
			ReturnPct:  summary.ReturnPct,
			Positions:  len(summary.Positions),
		})
	}
	return nil
}
