package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// Store is the repository subset the engine needs
type Store interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) (int64, error)
	GetHolding(ctx context.Context, agentID, symbol string) (*models.Holding, error)
	UpsertHolding(ctx context.Context, holding *models.Holding) error
	DeleteHolding(ctx context.Context, agentID, symbol string) error
	ListHoldings(ctx context.Context, agentID string) ([]models.Holding, error)
	GetAgentCash(ctx context.Context, agentID string) (decimal.Decimal, error)
	UpdateAgentCash(ctx context.Context, agentID string, cash decimal.Decimal) error
	CountTransactionsSince(ctx context.Context, agentID string, since time.Time) (int, error)
}

// QuoteSource supplies current prices for fills and valuation
type QuoteSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Engine executes simulated fills against the Taiwan market rule set:
// lot-multiple quantities, 0.1425% fee both sides, 0.3% tax on sells,
// average-cost holdings. Per-agent serialization is the caller's job;
// the engine only guards its own bookkeeping.
type Engine struct {
	mu     sync.Mutex
	store  Store
	quotes QuoteSource
	cfg    config.TradingConfig
}

// NewEngine creates a fill engine
func NewEngine(store Store, quotes QuoteSource, cfg config.TradingConfig) *Engine {
	return &Engine{store: store, quotes: quotes, cfg: cfg}
}

// ExecuteBuy simulates one buy. A nil limit means a market order filled at
// the quoted price; a limit buy fills only when limit >= quoted price.
func (e *Engine) ExecuteBuy(ctx context.Context, agentID, sessionID, symbol string, quantity int64, limit *decimal.Decimal, reason string) (*models.FillResult, error) {
	return e.execute(ctx, agentID, sessionID, symbol, models.SideBuy, quantity, limit, reason)
}

// ExecuteSell simulates one sell. A limit sell fills only when
// limit <= quoted price.
func (e *Engine) ExecuteSell(ctx context.Context, agentID, sessionID, symbol string, quantity int64, limit *decimal.Decimal, reason string) (*models.FillResult, error) {
	return e.execute(ctx, agentID, sessionID, symbol, models.SideSell, quantity, limit, reason)
}

func (e *Engine) execute(ctx context.Context, agentID, sessionID, symbol string, side models.TradeSide, quantity int64, limit *decimal.Decimal, reason string) (*models.FillResult, error) {
	if symbol == "" {
		return nil, apperrors.Validationf("empty_symbol", "symbol is required").WithField("symbol")
	}
	if quantity <= 0 {
		return nil, apperrors.Validationf("bad_quantity", "quantity must be positive").WithField("quantity")
	}
	if quantity%e.cfg.LotSize != 0 {
		return nil, apperrors.Validationf("odd_lot", "quantity must be a multiple of the lot size %d", e.cfg.LotSize).WithField("quantity")
	}

	price, err := e.quotes.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.Upstreamf("bad_price", "no positive price available for %s", symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if limit != nil {
		if !limitMarketable(side, *limit, price) {
			e.recordFailed(ctx, agentID, sessionID, symbol, side, quantity, price, fmt.Sprintf("limit %s not marketable at %s", limit.String(), price.String()))
			return nil, apperrors.Validationf("limit_not_marketable", "limit order does not cross the market price %s", price.String()).WithField("limit_price")
		}
	}

	notional := price.Mul(decimal.NewFromInt(quantity))
	fee := notional.Mul(decimal.NewFromFloat(e.cfg.FeeRate)).Round(2)
	tax := decimal.Zero
	if side == models.SideSell {
		tax = notional.Mul(decimal.NewFromFloat(e.cfg.SellTaxRate)).Round(2)
	}

	cash, err := e.store.GetAgentCash(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var cashAfter decimal.Decimal
	switch side {
	case models.SideBuy:
		cost := notional.Add(fee)
		if cash.LessThan(cost) {
			e.recordFailed(ctx, agentID, sessionID, symbol, side, quantity, price, "insufficient cash")
			return nil, apperrors.Validationf("insufficient_cash", "need %s, have %s", cost.String(), cash.String())
		}
		cashAfter = cash.Sub(cost)

	case models.SideSell:
		holding, err := e.store.GetHolding(ctx, agentID, symbol)
		if err != nil {
			return nil, err
		}
		if holding == nil || holding.Quantity < quantity {
			held := int64(0)
			if holding != nil {
				held = holding.Quantity
			}
			e.recordFailed(ctx, agentID, sessionID, symbol, side, quantity, price, "insufficient holdings")
			return nil, apperrors.Validationf("insufficient_holdings", "hold %d, tried to sell %d", held, quantity)
		}
		cashAfter = cash.Add(notional).Sub(fee).Sub(tax)
	}

	tx := &models.Transaction{
		AgentID:    agentID,
		SessionID:  sessionID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Notional:   notional,
		Fee:        fee,
		Tax:        tax,
		Status:     models.TradeExecuted,
		Reason:     reason,
		ExecutedAt: time.Now().UTC(),
	}
	txID, err := e.store.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, apperrors.Internalf("tx_insert_failed", "failed to persist transaction").WithCause(err)
	}

	if err := e.applyToHolding(ctx, agentID, symbol, side, quantity, price); err != nil {
		return nil, err
	}
	if err := e.store.UpdateAgentCash(ctx, agentID, cashAfter); err != nil {
		return nil, apperrors.Internalf("cash_update_failed", "failed to persist cash").WithCause(err)
	}

	logger.Info("simulated fill executed",
		zap.String("agent_id", agentID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
	)

	return &models.FillResult{
		TransactionID: txID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		ExecutedPrice: price,
		Notional:      notional,
		Fee:           fee,
		Tax:           tax,
		CashAfter:     cashAfter,
	}, nil
}

// applyToHolding updates the materialized position. Buys re-average cost,
// sells keep the cost basis; a fully closed position is removed.
func (e *Engine) applyToHolding(ctx context.Context, agentID, symbol string, side models.TradeSide, quantity int64, price decimal.Decimal) error {
	holding, err := e.store.GetHolding(ctx, agentID, symbol)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	switch side {
	case models.SideBuy:
		if holding == nil {
			holding = &models.Holding{AgentID: agentID, Symbol: symbol, Quantity: quantity, AvgCost: price, UpdatedAt: now}
		} else {
			oldCost := holding.AvgCost.Mul(decimal.NewFromInt(holding.Quantity))
			newCost := price.Mul(decimal.NewFromInt(quantity))
			total := holding.Quantity + quantity
			holding.AvgCost = oldCost.Add(newCost).Div(decimal.NewFromInt(total))
			holding.Quantity = total
			holding.UpdatedAt = now
		}
		return e.store.UpsertHolding(ctx, holding)

	case models.SideSell:
		holding.Quantity -= quantity
		holding.UpdatedAt = now
		if holding.Quantity == 0 {
			return e.store.DeleteHolding(ctx, agentID, symbol)
		}
		return e.store.UpsertHolding(ctx, holding)
	}
	return nil
}

// recordFailed persists a failed Transaction row; insert errors are logged
// and swallowed so the original rejection reaches the caller.
func (e *Engine) recordFailed(ctx context.Context, agentID, sessionID, symbol string, side models.TradeSide, quantity int64, price decimal.Decimal, reason string) {
	tx := &models.Transaction{
		AgentID:    agentID,
		SessionID:  sessionID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Notional:   price.Mul(decimal.NewFromInt(quantity)),
		Status:     models.TradeFailed,
		Reason:     reason,
		ExecutedAt: time.Now().UTC(),
	}
	if _, err := e.store.InsertTransaction(ctx, tx); err != nil {
		logger.Warn("failed to persist rejected trade",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
}

// Snapshot values the portfolio at current prices. Symbols whose price is
// unavailable are valued at average cost.
func (e *Engine) Snapshot(ctx context.Context, agentID string, initialFunds decimal.Decimal) (*models.PortfolioSummary, error) {
	cash, err := e.store.GetAgentCash(ctx, agentID)
	if err != nil {
		return nil, err
	}
	holdings, err := e.store.ListHoldings(ctx, agentID)
	if err != nil {
		return nil, err
	}

	summary := &models.PortfolioSummary{
		AgentID:   agentID,
		Cash:      cash,
		Positions: make([]models.Position, 0, len(holdings)),
		AsOf:      time.Now().UTC(),
	}

	total := cash
	for _, h := range holdings {
		price, err := e.quotes.CurrentPrice(ctx, h.Symbol)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			price = h.AvgCost
		}
		qty := decimal.NewFromInt(h.Quantity)
		value := price.Mul(qty)
		summary.Positions = append(summary.Positions, models.Position{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AvgCost:      h.AvgCost,
			CurrentPrice: price,
			MarketValue:  value,
			UnrealizedPL: value.Sub(h.AvgCost.Mul(qty)),
		})
		total = total.Add(value)
	}

	summary.TotalValue = total
	if initialFunds.GreaterThan(decimal.Zero) {
		summary.ReturnPct = models.ToFloat64(total.Sub(initialFunds).Div(initialFunds).Mul(decimal.NewFromInt(100)))
	}
	return summary, nil
}

// TradesToday counts executed transactions since Asia/Taipei midnight
func (e *Engine) TradesToday(ctx context.Context, agentID string, loc *time.Location) (int, error) {
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return e.store.CountTransactionsSince(ctx, agentID, midnight.UTC())
}

func limitMarketable(side models.TradeSide, limit, price decimal.Decimal) bool {
	if side == models.SideBuy {
		return limit.GreaterThanOrEqual(price)
	}
	return limit.LessThanOrEqual(price)
}
