package workers

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// SessionStarter is the manager subset the review worker drives
type SessionStarter interface {
	ListAgents(ctx context.Context) ([]models.AgentView, error)
	StartSession(ctx context.Context, agentID string, mode models.AgentMode, turnBudget int, userMessage string) (string, error)
}

// StrategyLog reads the applied strategy-change history
type StrategyLog interface {
	AppliedStrategyChanges(ctx context.Context, agentID string) ([]models.StrategyChange, error)
}

// TradingCalendar answers whether the market trades right now
type TradingCalendar interface {
	Status() models.MarketStatus
}

// StrategyReviewWorker starts a scheduled strategy-review session on idle
// agents whose rebalance cadence has elapsed. Busy agents are skipped,
// not queued.
type StrategyReviewWorker struct {
	manager  SessionStarter
	changes  StrategyLog
	calendar TradingCalendar
	now      func() time.Time
}

// NewStrategyReviewWorker creates the review worker
func NewStrategyReviewWorker(manager SessionStarter, changes StrategyLog, calendar TradingCalendar) *StrategyReviewWorker {
	return &StrategyReviewWorker{
		manager:  manager,
		changes:  changes,
		calendar: calendar,
		now:      time.Now,
	}
}

// Name implements worker.Worker
func (w *StrategyReviewWorker) Name() string {
	return "strategy_review"
}

// cadenceInterval maps a profile's rebalance cadence tag to a review
// interval. Unknown or empty tags review daily.
func cadenceInterval(tag string) time.Duration {
	switch strings.ToLower(tag) {
	case "weekly":
		return 7 * 24 * time.Hour
	case "biweekly":
		return 14 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Run dispatches review sessions for every idle agent that is due. Runs
// only on trading days; weekends and holidays produce no sessions.
func (w *StrategyReviewWorker) Run(ctx context.Context) error {
	if !w.calendar.Status().IsTradingDay {
		return nil
	}

	views, err := w.manager.ListAgents(ctx)
	if err != nil {
		return err
	}

	for _, view := range views {
		if view.State.Status != models.StatusIdle {
			continue
		}
		if !w.due(ctx, view) {
			continue
		}

		sessionID, err := w.manager.StartSession(ctx, view.Profile.ID, models.ModeStrategyReview, 0,
			"Scheduled review: evaluate recent performance and record a strategy change if your adjustment criteria are met.")
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				continue
			}
			logger.Warn("scheduled review start failed",
				zap.String("agent_id", view.Profile.ID),
				zap.Error(err),
			)
			continue
		}

		logger.Info("scheduled strategy review started",
			zap.String("agent_id", view.Profile.ID),
			zap.String("session_id", sessionID),
		)
	}
	return nil
}

// due reports whether the agent's cadence has elapsed since its last
// applied strategy change, or since creation when none exists yet
func (w *StrategyReviewWorker) due(ctx context.Context, view models.AgentView) bool {
	last := view.Profile.CreatedAt
	changes, err := w.changes.AppliedStrategyChanges(ctx, view.Profile.ID)
	if err != nil {
		logger.Warn("strategy history unavailable, skipping review",
			zap.String("agent_id", view.Profile.ID),
			zap.Error(err),
		)
		return false
	}
	if len(changes) > 0 {
		last = changes[len(changes)-1].CreatedAt
	}
	return w.now().Sub(last) >= cadenceInterval(view.Profile.Preferences.RebalanceCadence)
}
