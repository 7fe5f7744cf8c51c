package agents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// SupervisorStore is the repository subset the supervisor needs
type SupervisorStore interface {
	GetAgent(ctx context.Context, agentID string) (*models.AgentProfile, error)
	UpdateAgent(ctx context.Context, agentID string, update *models.ProfileUpdate) error
	UpdateRuntimeStatus(ctx context.Context, agentID string, status models.AgentStatus) error
	UpdateRuntimeMode(ctx context.Context, agentID string, mode models.AgentMode) error
}

// Supervisor is the per-agent state machine owning the single in-flight
// session. idle -> running -> (stopping) -> idle; error is terminal until
// the agent is deleted and recreated.
type Supervisor struct {
	mu      sync.Mutex
	profile models.AgentProfile
	mode    models.AgentMode
	status  models.AgentStatus

	runner *Runner
	store  SupervisorStore
	bus    *events.Bus
	cfg    config.SessionConfig

	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSupervisor creates a supervisor in idle
func NewSupervisor(profile models.AgentProfile, mode models.AgentMode, runner *Runner, store SupervisorStore, bus *events.Bus, cfg config.SessionConfig) *Supervisor {
	if !models.ValidMode(mode) {
		mode = models.ModeObservation
	}
	return &Supervisor{
		profile: profile,
		mode:    mode,
		status:  models.StatusIdle,
		runner:  runner,
		store:   store,
		bus:     bus,
		cfg:     cfg,
	}
}

// Start launches one session asynchronously and returns its id. Rejected
// with a conflict unless the supervisor is idle. onExit, when non-nil, is
// invoked exactly once after the session goroutine finishes, on every
// terminal path.
func (s *Supervisor) Start(ctx context.Context, mode models.AgentMode, turnBudget int, userMessage string, onExit func()) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case models.StatusError:
		return "", apperrors.Conflictf("agent_errored", "agent %s is in error state; delete and recreate it", s.profile.ID)
	case models.StatusRunning, models.StatusStopping:
		return "", apperrors.Conflictf("agent_busy", "agent %s already has a session in flight", s.profile.ID)
	}

	if mode != "" {
		if !models.ValidMode(mode) {
			return "", apperrors.Validationf("bad_mode", "unknown mode %q", mode).WithField("mode")
		}
		if mode != s.mode {
			if err := s.store.UpdateRuntimeMode(ctx, s.profile.ID, mode); err != nil {
				return "", s.enterErrorLocked(err)
			}
			s.mode = mode
		}
	}

	sessionID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())

	s.setStatusLocked(ctx, models.StatusRunning)
	s.sessionID = sessionID
	s.cancel = cancel
	s.done = make(chan struct{})

	params := SessionParams{
		SessionID:   sessionID,
		Profile:     s.profile,
		Mode:        s.mode,
		UserMessage: userMessage,
		TurnBudget:  turnBudget,
	}

	go func() {
		if onExit != nil {
			defer onExit()
		}
		defer cancel()
		_, err := s.runner.Run(runCtx, params)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.sessionID = ""
		s.cancel = nil
		close(s.done)

		if err != nil {
			// Runner faults before the session record exists are a
			// supervisor-level breakage, not a failed session.
			logger.Error("runner fault",
				zap.String("agent_id", s.profile.ID),
				zap.Error(err),
			)
			s.setStatusLocked(context.Background(), models.StatusError)
			return
		}
		s.setStatusLocked(context.Background(), models.StatusIdle)
	}()

	return sessionID, nil
}

// Stop requests cancellation and blocks until the supervisor leaves
// running, bounded by the grace timeout. A no-op when idle.
func (s *Supervisor) Stop(ctx context.Context) (models.AgentStatus, error) {
	s.mu.Lock()
	if s.status == models.StatusIdle || s.status == models.StatusError {
		status := s.status
		s.mu.Unlock()
		return status, nil
	}

	if s.status == models.StatusRunning {
		s.setStatusLocked(ctx, models.StatusStopping)
		if s.cancel != nil {
			s.cancel()
		}
	}
	done := s.done
	s.mu.Unlock()

	grace := s.cfg.StopGraceTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}

	select {
	case <-done:
	case <-time.After(grace):
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setStatusLocked(ctx, models.StatusError)
		return s.status, apperrors.Internalf("stop_timeout", "runner did not stop within %s", grace)
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}

	return s.Status(), nil
}

// SetMode switches the agent's mode; only allowed while idle
func (s *Supervisor) SetMode(ctx context.Context, mode models.AgentMode) error {
	if !models.ValidMode(mode) {
		return apperrors.Validationf("bad_mode", "unknown mode %q", mode).WithField("mode")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.StatusIdle {
		return apperrors.Conflictf("agent_busy", "mode can only change while the agent is idle")
	}
	if err := s.store.UpdateRuntimeMode(ctx, s.profile.ID, mode); err != nil {
		return s.enterErrorLocked(err)
	}
	s.mode = mode
	return nil
}

// UpdateProfile applies a profile update. Fields feeding instruction
// composition require the agent to be idle; metadata-only updates are
// always allowed.
func (s *Supervisor) UpdateProfile(ctx context.Context, update *models.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.AffectsInstructions() && s.status != models.StatusIdle {
		return apperrors.Conflictf("agent_busy", "instruction-affecting updates require the agent to be idle")
	}
	if err := s.store.UpdateAgent(ctx, s.profile.ID, update); err != nil {
		return err
	}

	refreshed, err := s.store.GetAgent(ctx, s.profile.ID)
	if err != nil {
		return s.enterErrorLocked(err)
	}
	s.profile = *refreshed
	return nil
}

// Status returns the current state machine position
func (s *Supervisor) Status() models.AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Mode returns the current mode
func (s *Supervisor) Mode() models.AgentMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Profile returns a copy of the current profile
func (s *Supervisor) Profile() models.AgentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SessionID returns the in-flight session id, empty when none
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// setStatusLocked transitions the state machine, persists it and emits
// the change. Must hold s.mu.
func (s *Supervisor) setStatusLocked(ctx context.Context, status models.AgentStatus) {
	if s.status == status {
		return
	}
	old := s.status
	s.status = status

	if err := s.store.UpdateRuntimeStatus(ctx, s.profile.ID, status); err != nil {
		logger.Error("failed to persist runtime status",
			zap.String("agent_id", s.profile.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	s.bus.Emit(events.AgentStatusChanged, s.profile.ID, s.sessionID, events.StatusChangedPayload{
		OldStatus: string(old),
		NewStatus: string(status),
	})
}

// enterErrorLocked flips to error on repository breakage. Must hold s.mu.
func (s *Supervisor) enterErrorLocked(cause error) error {
	s.setStatusLocked(context.Background(), models.StatusError)
	return apperrors.Internalf("supervisor_broken", "repository failure, agent moved to error state").WithCause(cause)
}
