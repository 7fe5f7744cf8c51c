package toolkit

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/indicators"
	"github.com/twquant/twse-agents/internal/market"
	"github.com/twquant/twse-agents/internal/portfolio"
	"github.com/twquant/twse-agents/internal/risk"
	"github.com/twquant/twse-agents/internal/sentiment"
	"github.com/twquant/twse-agents/pkg/models"
)

// Scope identifies which agent and session a tool call belongs to
type Scope struct {
	AgentID      string
	SessionID    string
	InitialFunds decimal.Decimal
}

// Store is the repository subset the toolkit needs directly; trades and
// holdings go through the portfolio engine instead
type Store interface {
	InsertStrategyChange(ctx context.Context, change *models.StrategyChange) (int64, error)
}

// Toolkit implements every tool executor over the gateway, the portfolio
// engine and the analysis helpers. One instance serves all agents; agent
// identity arrives per call via Scope.
type Toolkit struct {
	gateway    *market.Gateway
	calendar   *market.Calendar
	calculator *indicators.Calculator
	analyzer   *sentiment.Analyzer
	validator  *risk.Validator
	engine     *portfolio.Engine
	store      Store
	bus        *events.Bus
	trading    config.TradingConfig

	mu      sync.Mutex
	history map[string][]models.DailyTrading // per-symbol daily bars, oldest first
}

// NewToolkit wires a toolkit over its collaborators
func NewToolkit(
	gateway *market.Gateway,
	calendar *market.Calendar,
	calculator *indicators.Calculator,
	analyzer *sentiment.Analyzer,
	validator *risk.Validator,
	engine *portfolio.Engine,
	store Store,
	bus *events.Bus,
	trading config.TradingConfig,
) *Toolkit {
	return &Toolkit{
		gateway:    gateway,
		calendar:   calendar,
		calculator: calculator,
		analyzer:   analyzer,
		validator:  validator,
		engine:     engine,
		store:      store,
		bus:        bus,
		trading:    trading,
		history:    make(map[string][]models.DailyTrading),
	}
}

// rememberBar appends a daily bar to the in-memory series, deduplicating
// by date. The series backs indicator and sentiment tools between fetches.
func (t *Toolkit) rememberBar(bar *models.DailyTrading) {
	if bar == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	series := t.history[bar.Symbol]
	for _, existing := range series {
		if existing.Date == bar.Date {
			return
		}
	}
	t.history[bar.Symbol] = append(series, *bar)
}

// rememberBars bulk-loads a series, replacing whatever was held
func (t *Toolkit) rememberBars(symbol string, bars []models.DailyTrading) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[symbol] = append([]models.DailyTrading(nil), bars...)
}

func (t *Toolkit) bars(symbol string) []models.DailyTrading {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.DailyTrading(nil), t.history[symbol]...)
}
