package toolkit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/risk"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// ValidateTrade scores a proposed trade without executing it
func (t *Toolkit) ValidateTrade(ctx context.Context, scope Scope, symbol string, side models.TradeSide, quantity int64, limit *decimal.Decimal) (*risk.TradeValidation, error) {
	price := decimal.Zero
	if limit != nil {
		price = *limit
	} else {
		quoted, err := t.engineQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		price = quoted
	}

	summary, err := t.engine.Snapshot(ctx, scope.AgentID, scope.InitialFunds)
	if err != nil {
		return nil, err
	}

	held := int64(0)
	for _, pos := range summary.Positions {
		if pos.Symbol == symbol {
			held = pos.Quantity
			break
		}
	}

	loc := time.Local
	if taipei, lerr := time.LoadLocation("Asia/Taipei"); lerr == nil {
		loc = taipei
	}
	dailyCount, err := t.engine.TradesToday(ctx, scope.AgentID, loc)
	if err != nil {
		return nil, err
	}

	return t.validator.ValidateTrade(risk.TradeRequest{
		Symbol:          symbol,
		Side:            side,
		Quantity:        quantity,
		Price:           price,
		PortfolioValue:  summary.TotalValue,
		HeldQuantity:    held,
		DailyTradeCount: dailyCount,
	}), nil
}

// GetPortfolio returns the agent's valued holdings and cash
func (t *Toolkit) GetPortfolio(ctx context.Context, scope Scope) (*models.PortfolioSummary, error) {
	return t.engine.Snapshot(ctx, scope.AgentID, scope.InitialFunds)
}

// SimulateBuy executes one simulated buy and publishes the fill
func (t *Toolkit) SimulateBuy(ctx context.Context, scope Scope, symbol string, quantity int64, limit *decimal.Decimal, reason string) (*models.FillResult, error) {
	fill, err := t.engine.ExecuteBuy(ctx, scope.AgentID, scope.SessionID, symbol, quantity, limit, reason)
	if err != nil {
		return nil, err
	}
	t.publishFill(scope, fill)
	return fill, nil
}

// SimulateSell executes one simulated sell and publishes the fill
func (t *Toolkit) SimulateSell(ctx context.Context, scope Scope, symbol string, quantity int64, limit *decimal.Decimal, reason string) (*models.FillResult, error) {
	fill, err := t.engine.ExecuteSell(ctx, scope.AgentID, scope.SessionID, symbol, quantity, limit, reason)
	if err != nil {
		return nil, err
	}
	t.publishFill(scope, fill)
	return fill, nil
}

func (t *Toolkit) publishFill(scope Scope, fill *models.FillResult) {
	if t.bus == nil {
		return
	}
	t.bus.Emit(events.TransactionRecorded, scope.AgentID, scope.SessionID, events.TransactionPayload{
		TransactionID: formatID(fill.TransactionID),
		Symbol:        fill.Symbol,
		Side:          string(fill.Side),
		Quantity:      fill.Quantity,
		Price:         fill.ExecutedPrice,
		Notional:      fill.Notional,
	})
}

// RecordStrategyChange appends one immutable strategy-change record, with
// the performance snapshot captured at call time
func (t *Toolkit) RecordStrategyChange(ctx context.Context, scope Scope, trigger models.TriggerKind, triggerReason, addition, summary, explanation string) (*models.StrategyChange, error) {
	if !models.ValidTriggerKind(trigger) {
		return nil, apperrors.Validationf("bad_trigger", "unknown trigger kind %q", trigger).WithField("trigger_kind")
	}
	if addition == "" {
		return nil, apperrors.Validationf("empty_addition", "addition text is required").WithField("addition")
	}

	perf := models.PerformanceSnapshot{}
	if snapshot, err := t.engine.Snapshot(ctx, scope.AgentID, scope.InitialFunds); err == nil {
		perf = models.PerformanceSnapshot{
			TotalValue: snapshot.TotalValue,
			Cash:       snapshot.Cash,
			ReturnPct:  snapshot.ReturnPct,
		}
	}

	change := &models.StrategyChange{
		AgentID:       scope.AgentID,
		Trigger:       trigger,
		TriggerReason: triggerReason,
		Addition:      addition,
		Summary:       summary,
		Explanation:   explanation,
		Performance:   perf,
		Applied:       true,
		CreatedAt:     time.Now().UTC(),
	}

	id, err := t.store.InsertStrategyChange(ctx, change)
	if err != nil {
		return nil, apperrors.Internalf("strategy_insert_failed", "failed to persist strategy change").WithCause(err)
	}
	change.ID = id

	if t.bus != nil {
		t.bus.Emit(events.StrategyChangeRecorded, scope.AgentID, scope.SessionID, events.StrategyChangePayload{
			ChangeID:      formatID(id),
			TriggerKind:   string(trigger),
			ChangeSummary: summary,
		})
	}

	return change, nil
}

// engineQuote fetches a current price for validation purposes
func (t *Toolkit) engineQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := t.fetchMarket(ctx, symbol, models.KindQuote, false)
	if err != nil {
		return decimal.Zero, err
	}
	quote, ok := resp.Data.(*models.StockQuote)
	if !ok {
		return decimal.Zero, apperrors.Internalf("bad_payload", "unexpected quote payload type for %s", symbol)
	}
	return quote.Price, nil
}
