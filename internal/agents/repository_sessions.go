package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// InsertSession creates the session row at start time
func (r *Repository) InsertSession(ctx context.Context, session *models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, mode, status, started_at, turns, duration, final_output)
		VALUES ($1, $2, $3, $4, $5, 0, 0, '')
	`, session.ID, session.AgentID, session.Mode, session.Status, session.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FinalizeSession persists the terminal state of a session
func (r *Repository) FinalizeSession(ctx context.Context, session *models.Session) error {
	var errorJSON []byte
	if session.Error != nil {
		var err error
		errorJSON, err = json.Marshal(session.Error)
		if err != nil {
			return fmt.Errorf("failed to marshal session error: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $2, ended_at = $3, turns = $4, duration = $5,
		    final_output = $6, error = $7
		WHERE id = $1
	`, session.ID, session.Status, session.EndedAt, session.Turns,
		session.Duration, session.FinalOutput, errorJSON)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	return nil
}

// InsertToolInvocation appends one tool call record
func (r *Repository) InsertToolInvocation(ctx context.Context, inv *models.ToolInvocation) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tool_invocations (session_id, seq, tool, input, output, latency, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, inv.SessionID, inv.Seq, inv.Tool, []byte(inv.Input), []byte(inv.Output),
		inv.Latency, inv.Success).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tool invocation: %w", err)
	}
	return nil
}

// GetSessionDetail loads a session with its ordered invocations and
// aggregate trade counts
func (r *Repository) GetSessionDetail(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	var detail models.SessionDetail
	var errorJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, agent_id, mode, status, started_at, ended_at, turns,
		       duration, final_output, error
		FROM sessions
		WHERE id = $1
	`, sessionID).Scan(
		&detail.ID,
		&detail.AgentID,
		&detail.Mode,
		&detail.Status,
		&detail.StartedAt,
		&detail.EndedAt,
		&detail.Turns,
		&detail.Duration,
		&detail.FinalOutput,
		&errorJSON,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("session_not_found", "session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(errorJSON) > 0 {
		detail.Error = &models.ErrorDescriptor{}
		if err := json.Unmarshal(errorJSON, detail.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session error: %w", err)
		}
	}

	if err := r.db.SelectContext(ctx, &detail.Invocations, `
		SELECT id, session_id, seq, tool, input, output, latency, success, created_at
		FROM tool_invocations
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list tool invocations: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE side = 'buy'),
		       COUNT(*) FILTER (WHERE side = 'sell')
		FROM transactions
		WHERE session_id = $1 AND status = 'executed'
	`, sessionID).Scan(&detail.TradeCount, &detail.BuyCount, &detail.SellCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count session trades: %w", err)
	}

	return &detail, nil
}
