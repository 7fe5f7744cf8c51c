package agents

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/ai"
	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/toolkit"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// SessionStore is the repository subset the runner needs
type SessionStore interface {
	InsertSession(ctx context.Context, session *models.Session) error
	FinalizeSession(ctx context.Context, session *models.Session) error
	InsertToolInvocation(ctx context.Context, inv *models.ToolInvocation) error
	AppliedStrategyChanges(ctx context.Context, agentID string) ([]models.StrategyChange, error)
}

// Runner executes bounded reasoning sessions. It holds no per-session
// state, so one instance is shared by every supervisor.
type Runner struct {
	registry *toolkit.Registry
	composer *Composer
	reasoner ai.Reasoner
	store    SessionStore
	bus      *events.Bus
	cfg      config.SessionConfig
}

// NewRunner wires a session runner
func NewRunner(registry *toolkit.Registry, composer *Composer, reasoner ai.Reasoner, store SessionStore, bus *events.Bus, cfg config.SessionConfig) *Runner {
	return &Runner{
		registry: registry,
		composer: composer,
		reasoner: reasoner,
		store:    store,
		bus:      bus,
		cfg:      cfg,
	}
}

// SessionParams carries everything one session needs
type SessionParams struct {
	SessionID   string
	Profile     models.AgentProfile
	Mode        models.AgentMode
	UserMessage string
	TurnBudget  int
}

// Run drives the session to a terminal state and persists it. The
// returned session is always non-nil once the record was inserted;
// cancellation of ctx maps to status stopped.
func (r *Runner) Run(ctx context.Context, params SessionParams) (*models.Session, error) {
	turnBudget := params.TurnBudget
	if turnBudget <= 0 {
		turnBudget = params.Profile.MaxTurns
	}
	if turnBudget <= 0 {
		turnBudget = r.cfg.DefaultMaxTurns
	}

	session := &models.Session{
		ID:        params.SessionID,
		AgentID:   params.Profile.ID,
		Mode:      params.Mode,
		Status:    models.SessionRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.InsertSession(ctx, session); err != nil {
		return nil, apperrors.Internalf("session_insert_failed", "failed to persist session").WithCause(err)
	}

	r.bus.Emit(events.SessionStarted, session.AgentID, session.ID, events.SessionPayload{
		Mode:   string(session.Mode),
		Status: string(session.Status),
	})

	r.drive(ctx, session, params, turnBudget)

	now := time.Now().UTC()
	session.EndedAt = &now
	session.Duration = now.Sub(session.StartedAt)
	if err := r.store.FinalizeSession(context.WithoutCancel(ctx), session); err != nil {
		logger.Error("failed to finalize session",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	r.bus.Emit(terminalEvent(session.Status), session.AgentID, session.ID, events.SessionPayload{
		Mode:          string(session.Mode),
		Status:        string(session.Status),
		TurnsConsumed: session.Turns,
		Duration:      session.Duration,
		FinalOutput:   session.FinalOutput,
		ErrorKind:     errorKind(session.Error),
		ErrorMessage:  errorMessage(session.Error),
	})

	return session, nil
}

// drive runs the reasoner loop and sets the terminal status on session
func (r *Runner) drive(ctx context.Context, session *models.Session, params SessionParams, turnBudget int) {
	toolNames := ToolsForMode(r.registry, params.Mode, params.Profile.EnabledTools)

	changes, err := r.store.AppliedStrategyChanges(ctx, params.Profile.ID)
	if err != nil {
		r.fail(session, apperrors.Internalf("strategy_load_failed", "failed to load strategy changes").WithCause(err))
		return
	}

	instructions, err := r.composer.Compose(params.Profile, params.Mode, toolNames, changes)
	if err != nil {
		r.fail(session, apperrors.Internalf("compose_failed", "failed to compose instructions").WithCause(err))
		return
	}

	descriptors := make([]ai.ToolDescriptor, 0, len(toolNames))
	for _, name := range toolNames {
		meta, ok := r.registry.GetMetadata(name)
		if !ok {
			continue
		}
		descriptors = append(descriptors, ai.ToolDescriptor{
			Name:        name,
			Description: meta.Description,
			Schema:      meta.Schema(),
		})
	}

	budget := r.cfg.WallClockBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	stream, err := r.reasoner.StartSession(runCtx, ai.Request{
		Model:        params.Profile.Model,
		Instructions: instructions,
		UserMessage:  params.UserMessage,
		Tools:        descriptors,
	})
	if err != nil {
		r.fail(session, apperrors.Upstreamf("reasoner_start_failed", "failed to start reasoner session").WithCause(err))
		return
	}
	defer stream.Close()

	scope := toolkit.Scope{
		AgentID:      params.Profile.ID,
		SessionID:    session.ID,
		InitialFunds: params.Profile.InitialFunds,
	}

	for {
		evt, err := stream.Recv(runCtx)
		if err != nil {
			if runCtx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				session.Status = models.SessionStopped
				return
			}
			r.fail(session, apperrors.Upstreamf("reasoner_failed", "reasoner stream failed").WithCause(err))
			return
		}

		switch evt.Kind {
		case ai.EventFinal:
			session.Status = models.SessionCompleted
			session.FinalOutput = evt.Final
			return

		case ai.EventToolCall:
			session.Turns++
			if err := r.handleToolCall(runCtx, session, scope, stream, evt.Call); err != nil {
				if runCtx.Err() != nil {
					session.Status = models.SessionStopped
					return
				}
				r.fail(session, err)
				return
			}

			// The budget bounds executed tool calls, so it is checked
			// after the call, before asking the reasoner for more.
			if session.Turns >= turnBudget {
				logger.Info("turn budget exhausted",
					zap.String("session_id", session.ID),
					zap.Int("turn_budget", turnBudget),
				)
				session.Status = models.SessionStopped
				return
			}

		default:
			r.fail(session, apperrors.Internalf("bad_event", "unknown reasoner event kind %q", evt.Kind))
			return
		}
	}
}

// handleToolCall executes one tool, persists the invocation and feeds the
// result back to the reasoner. Only internal faults return an error.
func (r *Runner) handleToolCall(ctx context.Context, session *models.Session, scope toolkit.Scope, stream ai.Stream, call *ai.ToolCall) error {
	toolCtx := ctx
	if r.cfg.ToolCallTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, r.cfg.ToolCallTimeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := r.registry.Execute(toolCtx, scope, call.Name, call.Params)
	latency := time.Since(startTime)
	if err != nil {
		return err
	}

	inputJSON, _ := json.Marshal(call.Params)
	outputJSON, _ := json.Marshal(result)
	inv := &models.ToolInvocation{
		SessionID: session.ID,
		Seq:       session.Turns,
		Tool:      call.Name,
		Input:     inputJSON,
		Output:    outputJSON,
		Latency:   latency,
		Success:   result.OK,
	}
	if err := r.store.InsertToolInvocation(context.WithoutCancel(ctx), inv); err != nil {
		return apperrors.Internalf("invocation_insert_failed", "failed to persist tool invocation").WithCause(err)
	}

	r.bus.Emit(events.ToolInvoked, session.AgentID, session.ID, events.ToolInvokedPayload{
		Tool:    call.Name,
		Seq:     inv.Seq,
		Success: result.OK,
		Latency: latency,
	})

	if err := stream.Reply(ctx, call.ID, result); err != nil {
		return apperrors.Upstreamf("reply_failed", "failed to reply to reasoner").WithCause(err)
	}
	return nil
}

func (r *Runner) fail(session *models.Session, err error) {
	ae := apperrors.AsError(err)
	session.Status = models.SessionFailed
	session.Error = &models.ErrorDescriptor{
		Kind:    string(ae.Kind),
		Code:    ae.Code,
		Message: ae.Message,
		Field:   ae.Field,
	}
	logger.Warn("session failed",
		zap.String("session_id", session.ID),
		zap.Error(err),
	)
}

func terminalEvent(status models.SessionStatus) events.Type {
	switch status {
	case models.SessionCompleted:
		return events.SessionCompleted
	case models.SessionFailed:
		return events.SessionFailed
	default:
		return events.SessionStopped
	}
}

func errorKind(desc *models.ErrorDescriptor) string {
	if desc == nil {
		return ""
	}
	return desc.Kind
}

func errorMessage(desc *models.ErrorDescriptor) string {
	if desc == nil {
		return ""
	}
	return desc.Message
}
