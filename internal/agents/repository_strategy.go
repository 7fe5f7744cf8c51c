package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twquant/twse-agents/pkg/models"
)

// InsertStrategyChange appends one immutable strategy-change record
func (r *Repository) InsertStrategyChange(ctx context.Context, change *models.StrategyChange) (int64, error) {
	performanceJSON, err := json.Marshal(change.Performance)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal performance snapshot: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO strategy_changes (
			agent_id, trigger_kind, trigger_reason, addition,
			summary, explanation, performance, applied, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, change.AgentID, change.Trigger, change.TriggerReason, change.Addition,
		change.Summary, change.Explanation, performanceJSON, change.Applied,
		change.CreatedAt,
	).Scan(&change.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy change: %w", err)
	}
	return change.ID, nil
}

// ListStrategyChanges pages an agent's change log, newest first
func (r *Repository) ListStrategyChanges(ctx context.Context, agentID string, limit, offset int) ([]models.StrategyChange, error) {
	return r.queryStrategyChanges(ctx, `
		SELECT id, agent_id, trigger_kind, trigger_reason, addition,
		       summary, explanation, performance, applied, created_at
		FROM strategy_changes
		WHERE agent_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
}

// AppliedStrategyChanges returns the applied log in insertion order, as
// consumed by instruction composition
func (r *Repository) AppliedStrategyChanges(ctx context.Context, agentID string) ([]models.StrategyChange, error) {
	return r.queryStrategyChanges(ctx, `
		SELECT id, agent_id, trigger_kind, trigger_reason, addition,
		       summary, explanation, performance, applied, created_at
		FROM strategy_changes
		WHERE agent_id = $1 AND applied
		ORDER BY id
	`, agentID)
}

func (r *Repository) queryStrategyChanges(ctx context.Context, query string, args ...any) ([]models.StrategyChange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy changes: %w", err)
	}
	defer rows.Close()

	var changes []models.StrategyChange
	for rows.Next() {
		var change models.StrategyChange
		var performanceJSON []byte
		if err := rows.Scan(
			&change.ID,
			&change.AgentID,
			&change.Trigger,
			&change.TriggerReason,
			&change.Addition,
			&change.Summary,
			&change.Explanation,
			&performanceJSON,
			&change.Applied,
			&change.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan strategy change: %w", err)
		}
		if len(performanceJSON) > 0 {
			if err := json.Unmarshal(performanceJSON, &change.Performance); err != nil {
				return nil, fmt.Errorf("failed to unmarshal performance snapshot: %w", err)
			}
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}
