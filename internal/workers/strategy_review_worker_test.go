package workers

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

type fakeStarter struct {
	views    []models.AgentView
	listErr  error
	startErr error
	started  []string
	modes    []models.AgentMode
}

func (f *fakeStarter) ListAgents(ctx context.Context) ([]models.AgentView, error) {
	return f.views, f.listErr
}

func (f *fakeStarter) StartSession(ctx context.Context, agentID string, mode models.AgentMode, turnBudget int, userMessage string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, agentID)
	f.modes = append(f.modes, mode)
	return "s-" + agentID, nil
}

type fakeStrategyLog struct {
	changes map[string][]models.StrategyChange
	err     error
}

func (f *fakeStrategyLog) AppliedStrategyChanges(ctx context.Context, agentID string) ([]models.StrategyChange, error) {
	return f.changes[agentID], f.err
}

type fakeCalendar struct {
	status models.MarketStatus
}

func (f *fakeCalendar) Status() models.MarketStatus {
	return f.status
}

func agentView(id, cadence string, status models.AgentStatus, createdAt time.Time) models.AgentView {
	return models.AgentView{
		Profile: models.AgentProfile{
			ID:        id,
			Name:      id,
			CreatedAt: createdAt,
			Preferences: models.InvestmentPreferences{
				RebalanceCadence: cadence,
			},
		},
		State: models.AgentRuntimeState{AgentID: id, Status: status},
	}
}

func reviewWorkerAt(starter *fakeStarter, log *fakeStrategyLog, tradingDay bool, now time.Time) *StrategyReviewWorker {
	w := NewStrategyReviewWorker(starter, log, &fakeCalendar{
		status: models.MarketStatus{IsTradingDay: tradingDay, Status: "open"},
	})
	w.now = func() time.Time { return now }
	return w
}

func TestStrategyReviewWorker_SkipsNonTradingDay(t *testing.T) {
	now := time.Now()
	starter := &fakeStarter{views: []models.AgentView{
		agentView("a1", "daily", models.StatusIdle, now.Add(-48*time.Hour)),
	}}
	w := reviewWorkerAt(starter, &fakeStrategyLog{}, false, now)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(starter.started) != 0 {
		t.Errorf("started %v on a non-trading day", starter.started)
	}
}

func TestStrategyReviewWorker_CadenceGatesDispatch(t *testing.T) {
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		cadence    string
		lastChange time.Duration // age of last applied change, 0 means none
		createdAgo time.Duration
		want       bool
	}{
		{"daily elapsed", "daily", 25 * time.Hour, 90 * 24 * time.Hour, true},
		{"daily not elapsed", "daily", 2 * time.Hour, 90 * 24 * time.Hour, false},
		{"weekly not elapsed", "weekly", 2 * 24 * time.Hour, 90 * 24 * time.Hour, false},
		{"weekly elapsed", "weekly", 8 * 24 * time.Hour, 90 * 24 * time.Hour, true},
		{"monthly not elapsed", "monthly", 14 * 24 * time.Hour, 90 * 24 * time.Hour, false},
		{"empty cadence defaults daily", "", 25 * time.Hour, 90 * 24 * time.Hour, true},
		{"no history falls back to creation", "daily", 0, 48 * time.Hour, true},
		{"fresh agent without history waits", "daily", 0, time.Hour, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			starter := &fakeStarter{views: []models.AgentView{
				agentView("a1", tc.cadence, models.StatusIdle, now.Add(-tc.createdAgo)),
			}}
			log := &fakeStrategyLog{changes: map[string][]models.StrategyChange{}}
			if tc.lastChange > 0 {
				log.changes["a1"] = []models.StrategyChange{
					{AgentID: "a1", Applied: true, CreatedAt: now.Add(-tc.lastChange)},
				}
			}

			w := reviewWorkerAt(starter, log, true, now)
			if err := w.Run(context.Background()); err != nil {
				t.Fatalf("run failed: %v", err)
			}

			started := len(starter.started) == 1
			if started != tc.want {
				t.Errorf("started = %v, want %v", started, tc.want)
			}
			if started && starter.modes[0] != models.ModeStrategyReview {
				t.Errorf("mode = %s, want strategy review", starter.modes[0])
			}
		})
	}
}

func TestStrategyReviewWorker_SkipsBusyAgents(t *testing.T) {
	now := time.Now()
	starter := &fakeStarter{views: []models.AgentView{
		agentView("busy", "daily", models.StatusRunning, now.Add(-48*time.Hour)),
		agentView("idle", "daily", models.StatusIdle, now.Add(-48*time.Hour)),
	}}
	w := reviewWorkerAt(starter, &fakeStrategyLog{}, true, now)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(starter.started) != 1 || starter.started[0] != "idle" {
		t.Errorf("started = %v, want [idle]", starter.started)
	}
}

func TestStrategyReviewWorker_ConflictIsNotAnError(t *testing.T) {
	now := time.Now()
	starter := &fakeStarter{
		views: []models.AgentView{
			agentView("a1", "daily", models.StatusIdle, now.Add(-48*time.Hour)),
		},
		startErr: apperrors.Conflictf("agent_busy", "agent a1 is running"),
	}
	w := reviewWorkerAt(starter, &fakeStrategyLog{}, true, now)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("a start conflict must not fail the sweep: %v", err)
	}
}

func TestStrategyReviewWorker_HistoryErrorSkipsAgent(t *testing.T) {
	now := time.Now()
	starter := &fakeStarter{views: []models.AgentView{
		agentView("a1", "daily", models.StatusIdle, now.Add(-48*time.Hour)),
	}}
	log := &fakeStrategyLog{err: errors.New("db down")}
	w := reviewWorkerAt(starter, log, true, now)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(starter.started) != 0 {
		t.Errorf("started %v despite unavailable history", starter.started)
	}
}
