package agents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twquant/twse-agents/pkg/models"
)

// InsertTransaction appends one simulated fill (or rejection) record
func (r *Repository) InsertTransaction(ctx context.Context, tx *models.Transaction) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (
			agent_id, session_id, symbol, side, quantity, price,
			notional, fee, tax, status, reason, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, tx.AgentID, tx.SessionID, tx.Symbol, tx.Side, tx.Quantity, tx.Price,
		tx.Notional, tx.Fee, tx.Tax, tx.Status, tx.Reason, tx.ExecutedAt,
	).Scan(&tx.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return tx.ID, nil
}

// ListTransactions pages an agent's trades, newest first
func (r *Repository) ListTransactions(ctx context.Context, agentID string, limit, offset int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT id, agent_id, session_id, symbol, side, quantity, price,
		       notional, fee, tax, status, reason, executed_at
		FROM transactions
		WHERE agent_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// CountTransactionsSince counts executed fills after a cutoff
func (r *Repository) CountTransactionsSince(ctx context.Context, agentID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM transactions
		WHERE agent_id = $1 AND status = 'executed' AND executed_at >= $2
	`, agentID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// GetHolding returns one position, or nil when the agent holds none
func (r *Repository) GetHolding(ctx context.Context, agentID, symbol string) (*models.Holding, error) {
	var holding models.Holding
	err := r.db.GetContext(ctx, &holding, `
		SELECT agent_id, symbol, quantity, avg_cost, updated_at
		FROM holdings
		WHERE agent_id = $1 AND symbol = $2
	`, agentID, symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return &holding, nil
}

// UpsertHolding writes the materialized position
func (r *Repository) UpsertHolding(ctx context.Context, holding *models.Holding) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holdings (agent_id, symbol, quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id, symbol)
		DO UPDATE SET quantity = $3, avg_cost = $4, updated_at = $5
	`, holding.AgentID, holding.Symbol, holding.Quantity, holding.AvgCost, holding.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

// DeleteHolding removes a fully closed position
func (r *Repository) DeleteHolding(ctx context.Context, agentID, symbol string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM holdings WHERE agent_id = $1 AND symbol = $2
	`, agentID, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// ListHoldings returns all of an agent's open positions
func (r *Repository) ListHoldings(ctx context.Context, agentID string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := r.db.SelectContext(ctx, &holdings, `
		SELECT agent_id, symbol, quantity, avg_cost, updated_at
		FROM holdings
		WHERE agent_id = $1
		ORDER BY symbol
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	return holdings, nil
}
