package agents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/portfolio"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// Locker guards session starts across replicas. Release is idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Manager owns the fleet of agent supervisors and is the single entry
// point for agent lifecycle and session dispatch
type Manager struct {
	mu          sync.RWMutex
	supervisors map[string]*Supervisor

	repo   *Repository
	runner *Runner
	engine *portfolio.Engine
	bus    *events.Bus
	cfg    config.SessionConfig
	locker Locker
}

// NewManager creates an empty manager; call Restore to load persisted agents
func NewManager(repo *Repository, runner *Runner, engine *portfolio.Engine, bus *events.Bus, cfg config.SessionConfig, locker Locker) *Manager {
	return &Manager{
		supervisors: make(map[string]*Supervisor),
		repo:        repo,
		runner:      runner,
		engine:      engine,
		bus:         bus,
		cfg:         cfg,
		locker:      locker,
	}
}

// Restore rebuilds supervisors for every persisted agent at boot. Agents
// left in a non-idle status by a crash come back as idle.
func (m *Manager) Restore(ctx context.Context) error {
	profiles, err := m.repo.ListAgents(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, profile := range profiles {
		state, err := m.repo.GetRuntimeState(ctx, profile.ID)
		if err != nil {
			return err
		}
		if state.Status != models.StatusIdle && state.Status != models.StatusError {
			if err := m.repo.UpdateRuntimeStatus(ctx, profile.ID, models.StatusIdle); err != nil {
				return err
			}
			state.Status = models.StatusIdle
		}
		sup := NewSupervisor(profile, state.Mode, m.runner, m.repo, m.bus, m.cfg)
		if state.Status == models.StatusError {
			sup.status = models.StatusError
		}
		m.supervisors[profile.ID] = sup
	}

	logger.Info("restored agents", zap.Int("count", len(m.supervisors)))
	return nil
}

// CreateAgent validates and persists a new profile and registers its
// supervisor. The returned profile carries the generated id.
func (m *Manager) CreateAgent(ctx context.Context, profile *models.AgentProfile) (*models.AgentProfile, error) {
	if err := profile.Validate(); err != nil {
		return nil, apperrors.Validationf("invalid_profile", "%s", err.Error())
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	if err := m.repo.CreateAgent(ctx, profile); err != nil {
		return nil, apperrors.Internalf("agent_create_failed", "failed to persist agent").WithCause(err)
	}

	sup := NewSupervisor(*profile, models.ModeObservation, m.runner, m.repo, m.bus, m.cfg)

	m.mu.Lock()
	m.supervisors[profile.ID] = sup
	m.mu.Unlock()

	m.bus.Emit(events.AgentCreated, profile.ID, "", map[string]any{
		"name":          profile.Name,
		"initial_funds": profile.InitialFunds,
	})
	logger.Info("agent created",
		zap.String("agent_id", profile.ID),
		zap.String("name", profile.Name),
	)
	return profile, nil
}

// DeleteAgent stops the agent if needed, soft-deletes the profile and
// unregisters the supervisor. History stays queryable.
func (m *Manager) DeleteAgent(ctx context.Context, agentID string) error {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return err
	}

	if _, err := sup.Stop(ctx); err != nil {
		logger.Warn("stop before delete did not finish cleanly",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}

	if err := m.repo.MarkAgentDeleted(ctx, agentID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.supervisors, agentID)
	m.mu.Unlock()

	m.bus.Emit(events.AgentDeleted, agentID, "", nil)
	logger.Info("agent deleted", zap.String("agent_id", agentID))
	return nil
}

// GetAgent returns the full view of one agent: profile, runtime state and
// a freshly valued portfolio summary when one can be computed
func (m *Manager) GetAgent(ctx context.Context, agentID string) (*models.AgentView, error) {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, sup)
}

// ListAgents returns views for every registered agent
func (m *Manager) ListAgents(ctx context.Context) ([]models.AgentView, error) {
	m.mu.RLock()
	sups := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.mu.RUnlock()

	views := make([]models.AgentView, 0, len(sups))
	for _, sup := range sups {
		view, err := m.view(ctx, sup)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// StartSession dispatches a session start to the agent's supervisor
func (m *Manager) StartSession(ctx context.Context, agentID string, mode models.AgentMode, turnBudget int, userMessage string) (string, error) {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return "", err
	}

	// The lock spans the whole session, not just the start: the
	// supervisor releases it when the run goroutine exits, and the TTL
	// backstops a crashed replica.
	var release func()
	if m.locker != nil {
		release, err = m.locker.Acquire(ctx, "agent:start:"+agentID, m.sessionLockTTL())
		if err != nil {
			return "", apperrors.Conflictf("start_locked", "agent %s is held by another replica", agentID)
		}
	}

	sessionID, err := sup.Start(ctx, mode, turnBudget, userMessage, release)
	if err != nil && release != nil {
		release()
	}
	return sessionID, err
}

// sessionLockTTL bounds how long a crashed replica can hold an agent
func (m *Manager) sessionLockTTL() time.Duration {
	ttl := m.cfg.WallClockBudget
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	grace := m.cfg.StopGraceTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return ttl + grace + 30*time.Second
}

// StopSession requests cancellation of the agent's in-flight session
func (m *Manager) StopSession(ctx context.Context, agentID string) (models.AgentStatus, error) {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return "", err
	}
	return sup.Stop(ctx)
}

// SetMode switches an idle agent's mode
func (m *Manager) SetMode(ctx context.Context, agentID string, mode models.AgentMode) error {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return err
	}
	return sup.SetMode(ctx, mode)
}

// UpdateAgent applies a profile update through the agent's supervisor
func (m *Manager) UpdateAgent(ctx context.Context, agentID string, update *models.ProfileUpdate) (*models.AgentProfile, error) {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return nil, err
	}
	if err := sup.UpdateProfile(ctx, update); err != nil {
		return nil, err
	}
	profile := sup.Profile()
	return &profile, nil
}

// Portfolio values an agent's holdings at current cached prices
func (m *Manager) Portfolio(ctx context.Context, agentID string) (*models.PortfolioSummary, error) {
	sup, err := m.supervisor(agentID)
	if err != nil {
		return nil, err
	}
	profile := sup.Profile()
	return m.engine.Snapshot(ctx, profile.ID, profile.InitialFunds)
}

// Subscribe exposes the event bus to API consumers
func (m *Manager) Subscribe() (<-chan events.Event, func()) {
	return m.bus.Subscribe()
}

// Shutdown stops every running agent, bounded by the grace timeout
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	sups := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sup := range sups {
		wg.Add(1)
		go func(sup *Supervisor) {
			defer wg.Done()
			if _, err := sup.Stop(ctx); err != nil {
				logger.Warn("agent did not stop during shutdown",
					zap.String("agent_id", sup.Profile().ID),
					zap.Error(err),
				)
			}
		}(sup)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown deadline reached before all agents stopped")
	}
}

// view assembles the API snapshot for one supervisor
func (m *Manager) view(ctx context.Context, sup *Supervisor) (*models.AgentView, error) {
	profile := sup.Profile()

	state, err := m.repo.GetRuntimeState(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	// In-memory status wins over the persisted row while transitions are
	// in flight.
	state.Status = sup.Status()
	state.Mode = sup.Mode()

	view := &models.AgentView{Profile: profile, State: *state}

	summary, err := m.engine.Snapshot(ctx, profile.ID, profile.InitialFunds)
	if err != nil {
		logger.Warn("portfolio snapshot unavailable",
			zap.String("agent_id", profile.ID),
			zap.Error(err),
		)
	} else {
		view.Portfolio = summary
	}
	return view, nil
}

func (m *Manager) supervisor(agentID string) (*Supervisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sup, ok := m.supervisors[agentID]
	if !ok {
		return nil, apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	return sup, nil
}
