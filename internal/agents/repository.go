package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// Repository handles database operations for agents, sessions, trades and
// strategy changes
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateAgent persists a profile and its initial runtime state
func (r *Repository) CreateAgent(ctx context.Context, profile *models.AgentProfile) error {
	preferencesJSON, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO agent_profiles (
			id, name, description, ai_model, initial_funds, max_turns,
			risk_tolerance, enabled_tools, preferences,
			custom_instructions, adjustment_criteria
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(
		ctx, query,
		profile.ID,
		profile.Name,
		profile.Description,
		profile.Model,
		profile.InitialFunds,
		profile.MaxTurns,
		profile.RiskTolerance,
		pq.Array(profile.EnabledTools),
		preferencesJSON,
		profile.CustomInstructions,
		profile.AdjustmentCriteria,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_runtime_state (agent_id, mode, status, cash, last_activity_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, profile.ID, models.ModeObservation, models.StatusIdle, profile.InitialFunds)
	if err != nil {
		return fmt.Errorf("failed to create runtime state: %w", err)
	}

	return tx.Commit()
}

// GetAgent retrieves one profile by id
func (r *Repository) GetAgent(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	query := `
		SELECT id, name, description, ai_model, initial_funds, max_turns,
		       risk_tolerance, enabled_tools, preferences,
		       custom_instructions, adjustment_criteria, created_at, updated_at
		FROM agent_profiles
		WHERE id = $1 AND deleted_at IS NULL
	`

	var profile models.AgentProfile
	var preferencesJSON []byte
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&profile.ID,
		&profile.Name,
		&profile.Description,
		&profile.Model,
		&profile.InitialFunds,
		&profile.MaxTurns,
		&profile.RiskTolerance,
		pq.Array(&profile.EnabledTools),
		&preferencesJSON,
		&profile.CustomInstructions,
		&profile.AdjustmentCriteria,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	if err := json.Unmarshal(preferencesJSON, &profile.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	return &profile, nil
}

// ListAgents returns all non-deleted profiles ordered by creation time
func (r *Repository) ListAgents(ctx context.Context) ([]models.AgentProfile, error) {
	query := `
		SELECT id, name, description, ai_model, initial_funds, max_turns,
		       risk_tolerance, enabled_tools, preferences,
		       custom_instructions, adjustment_criteria, created_at, updated_at
		FROM agent_profiles
		WHERE deleted_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var profiles []models.AgentProfile
	for rows.Next() {
		var profile models.AgentProfile
		var preferencesJSON []byte
		if err := rows.Scan(
			&profile.ID,
			&profile.Name,
			&profile.Description,
			&profile.Model,
			&profile.InitialFunds,
			&profile.MaxTurns,
			&profile.RiskTolerance,
			pq.Array(&profile.EnabledTools),
			&preferencesJSON,
			&profile.CustomInstructions,
			&profile.AdjustmentCriteria,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if err := json.Unmarshal(preferencesJSON, &profile.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// UpdateAgent applies the updatable profile subset
func (r *Repository) UpdateAgent(ctx context.Context, agentID string, update *models.ProfileUpdate) error {
	profile, err := r.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	if update.Description != nil {
		profile.Description = *update.Description
	}
	if update.CustomInstructions != nil {
		profile.CustomInstructions = *update.CustomInstructions
	}
	if update.AdjustmentCriteria != nil {
		profile.AdjustmentCriteria = *update.AdjustmentCriteria
	}
	if update.Preferences != nil {
		profile.Preferences = *update.Preferences
	}
	if update.RiskTolerance != nil {
		profile.RiskTolerance = *update.RiskTolerance
	}
	if update.EnabledTools != nil {
		profile.EnabledTools = update.EnabledTools
	}
	if err := profile.Validate(); err != nil {
		return apperrors.Validationf("invalid_update", "%s", err.Error())
	}

	preferencesJSON, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_profiles
		SET description = $2, custom_instructions = $3, adjustment_criteria = $4,
		    preferences = $5, risk_tolerance = $6, enabled_tools = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, agentID, profile.Description, profile.CustomInstructions, profile.AdjustmentCriteria,
		preferencesJSON, profile.RiskTolerance, pq.Array(profile.EnabledTools))
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	return nil
}

// MarkAgentDeleted soft-deletes the profile; history stays queryable
func (r *Repository) MarkAgentDeleted(ctx context.Context, agentID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_profiles SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	return nil
}

// GetRuntimeState loads one agent's runtime state
func (r *Repository) GetRuntimeState(ctx context.Context, agentID string) (*models.AgentRuntimeState, error) {
	var state models.AgentRuntimeState
	err := r.db.GetContext(ctx, &state, `
		SELECT agent_id, mode, status, cash, last_activity_at
		FROM agent_runtime_state
		WHERE agent_id = $1
	`, agentID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get runtime state: %w", err)
	}
	return &state, nil
}

// UpdateRuntimeStatus persists a supervisor state transition
func (r *Repository) UpdateRuntimeStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agent_runtime_state
		SET status = $2, last_activity_at = NOW()
		WHERE agent_id = $1
	`, agentID, status)
	if err != nil {
		return fmt.Errorf("failed to update runtime status: %w", err)
	}
	return nil
}

// UpdateRuntimeMode persists a mode switch
func (r *Repository) UpdateRuntimeMode(ctx context.Context, agentID string, mode models.AgentMode) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agent_runtime_state
		SET mode = $2, last_activity_at = NOW()
		WHERE agent_id = $1
	`, agentID, mode)
	if err != nil {
		return fmt.Errorf("failed to update runtime mode: %w", err)
	}
	return nil
}

// GetAgentCash returns the agent's current simulated cash
func (r *Repository) GetAgentCash(ctx context.Context, agentID string) (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := r.db.GetContext(ctx, &cash, `
		SELECT cash FROM agent_runtime_state WHERE agent_id = $1
	`, agentID)
	if err == sql.ErrNoRows {
		return decimal.Zero, apperrors.NotFoundf("agent_not_found", "agent %s not found", agentID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cash: %w", err)
	}
	return cash, nil
}

// UpdateAgentCash persists the agent's simulated cash after a fill
func (r *Repository) UpdateAgentCash(ctx context.Context, agentID string, cash decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agent_runtime_state
		SET cash = $2, last_activity_at = NOW()
		WHERE agent_id = $1
	`, agentID, cash)
	if err != nil {
		return fmt.Errorf("failed to update cash: %w", err)
	}
	return nil
}

// TouchAgent bumps last activity
func (r *Repository) TouchAgent(ctx context.Context, agentID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agent_runtime_state SET last_activity_at = $2 WHERE agent_id = $1
	`, agentID, at)
	return err
}
