package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

// ToolFunc is the signature for all tool executors
type ToolFunc func(ctx context.Context, scope Scope, params map[string]any) (any, error)

// Metadata describes one tool for introspection and for the reasoner
type Metadata struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema property map
	Required    []string
	SideEffect  models.SideEffect
}

// Schema renders the metadata as a JSON-schema object for tool calling
func (m Metadata) Schema() map[string]any {
	properties := m.Parameters
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(m.Required) > 0 {
		schema["required"] = m.Required
	}
	return schema
}

// MetricsLogger receives tool usage records, typically batched into
// ClickHouse
type MetricsLogger interface {
	LogToolUsage(ctx context.Context, toolName string, params any, success bool, executionTimeMs int)
	Close() error
}

// Registry manages all available tools for agents.
// Provides type-safe dynamic dispatch without hardcoded switch statements.
type Registry struct {
	tools         map[string]ToolFunc
	metadata      map[string]Metadata
	kit           *Toolkit
	metricsLogger MetricsLogger
}

// NewRegistry creates a registry over the toolkit and registers every tool
func NewRegistry(kit *Toolkit) *Registry {
	r := &Registry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]Metadata),
		kit:      kit,
	}
	r.registerTools()
	return r
}

// SetMetricsLogger sets an optional usage sink
func (r *Registry) SetMetricsLogger(metricsLogger MetricsLogger) {
	r.metricsLogger = metricsLogger
	if metricsLogger != nil {
		logger.Info("tool registry metrics logger set",
			zap.Int("tools_count", len(r.tools)),
		)
	}
}

// Execute runs one tool by name. The returned error is non-nil only for
// internal faults; every expected failure is carried inside the result.
func (r *Registry) Execute(ctx context.Context, scope Scope, name string, params map[string]any) (result models.ToolResult, err error) {
	fn, ok := r.tools[name]
	if !ok {
		return models.ToolResult{
			OK: false,
			Error: &models.ErrorDescriptor{
				Kind:    string(apperrors.KindValidation),
				Code:    "unknown_tool",
				Message: fmt.Sprintf("unknown tool: %s", name),
			},
		}, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", rec),
			)
			result = models.ToolResult{}
			err = apperrors.Internalf("tool_panic", "tool %s panicked: %v", name, rec)
		}
	}()

	logger.Debug("executing tool",
		zap.String("tool", name),
		zap.String("agent_id", scope.AgentID),
	)

	startTime := time.Now()
	data, toolErr := fn(ctx, scope, params)
	duration := time.Since(startTime)
	executionMs := int(duration.Milliseconds())

	if toolErr != nil {
		logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Error(toolErr),
			zap.Duration("duration", duration),
		)
		if r.metricsLogger != nil {
			r.metricsLogger.LogToolUsage(ctx, name, params, false, executionMs)
		}
		kind := apperrors.KindOf(toolErr)
		if kind == apperrors.KindInternal {
			return models.ToolResult{}, toolErr
		}
		ae := apperrors.AsError(toolErr)
		return models.ToolResult{
			OK: false,
			Error: &models.ErrorDescriptor{
				Kind:    string(ae.Kind),
				Code:    ae.Code,
				Message: ae.Message,
				Field:   ae.Field,
			},
		}, nil
	}

	logger.Debug("tool executed successfully",
		zap.String("tool", name),
		zap.Duration("duration", duration),
	)
	if r.metricsLogger != nil {
		r.metricsLogger.LogToolUsage(ctx, name, params, true, executionMs)
	}

	return models.ToolResult{OK: true, Data: data}, nil
}

// GetMetadata returns metadata for one tool
func (r *Registry) GetMetadata(name string) (Metadata, bool) {
	meta, ok := r.metadata[name]
	return meta, ok
}

// ListTools returns all registered tool names
func (r *Registry) ListTools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// ToolCount returns the number of registered tools
func (r *Registry) ToolCount() int {
	return len(r.tools)
}

// Close flushes the metrics buffer if one is attached
func (r *Registry) Close() error {
	if r.metricsLogger != nil {
		return r.metricsLogger.Close()
	}
	return nil
}

// registerTools registers all available tools with their wrappers.
// This is the only place new tools are added.
func (r *Registry) registerTools() {
	symbolParam := map[string]any{"type": "string", "description": "TWSE stock symbol, e.g. 2330"}

	r.register("get_stock_price", Metadata{
		Description: "Get the current price snapshot for a TWSE symbol",
		Parameters:  map[string]any{"symbol": symbolParam},
		Required:    []string{"symbol"},
		SideEffect:  models.EffectReadMarket,
	}, r.wrapGetStockPrice)

	r.register("get_company_profile", Metadata{
		Description: "Get basic issuer information for a symbol",
		Parameters:  map[string]any{"symbol": symbolParam},
		Required:    []string{"symbol"},
		SideEffect:  models.EffectReadMarket,
	}, r.wrapGetCompanyProfile)

	yearParam := map[string]any{"type": "integer", "description": "optional reporting year; omit for the latest report"}
	seasonParam := map[string]any{"type": "integer", "description": "optional reporting quarter 1-4; omit for the latest report"}

	r.register("get_income_statement", Metadata{
		Description: "Get a reported income statement, the latest by default",
		Parameters: map[string]any{
			"symbol": symbolParam,
			"year":   yearParam,
			"season": seasonParam,
		},
		Required:   []string{"symbol"},
		SideEffect: models.EffectReadMarket,
	}, r.wrapGetIncomeStatement)

	r.register("get_balance_sheet", Metadata{
		Description: "Get a reported balance sheet, the latest by default",
		Parameters: map[string]any{
			"symbol": symbolParam,
			"year":   yearParam,
			"season": seasonParam,
		},
		Required:   []string{"symbol"},
		SideEffect: models.EffectReadMarket,
	}, r.wrapGetBalanceSheet)

	r.register("get_daily_trading", Metadata{
		Description: "Get a daily OHLCV bar for a symbol, the latest session by default",
		Parameters: map[string]any{
			"symbol": symbolParam,
			"date":   map[string]any{"type": "string", "description": "optional YYYY-MM-DD; omit for the latest session"},
		},
		Required:   []string{"symbol"},
		SideEffect: models.EffectReadMarket,
	}, r.wrapGetDailyTrading)

	r.register("check_trading_day", Metadata{
		Description: "Check whether a date is a TWSE trading day",
		Parameters: map[string]any{
			"date": map[string]any{"type": "string", "description": "YYYY-MM-DD; empty means today"},
		},
		SideEffect: models.EffectReadMarket,
	}, r.wrapCheckTradingDay)

	r.register("calculate_technical_indicators", Metadata{
		Description: "Compute RSI, MACD, Bollinger bands, SMA/EMA and volume stats over accumulated daily bars",
		Parameters: map[string]any{
			"symbol": symbolParam,
			"series": map[string]any{"type": "array", "description": "optional daily OHLCV bars, oldest first"},
		},
		Required:   []string{"symbol"},
		SideEffect: models.EffectPure,
	}, r.wrapCalculateTechnicalIndicators)

	r.register("analyze_fundamentals", Metadata{
		Description: "Analyze profitability and leverage from reported statements",
		Parameters:  map[string]any{"symbol": symbolParam},
		Required:    []string{"symbol"},
		SideEffect:  models.EffectReadMarket,
	}, r.wrapAnalyzeFundamentals)

	r.register("analyze_technicals", Metadata{
		Description: "Derive trading signals and a directional bias from technical indicators",
		Parameters:  map[string]any{"symbol": symbolParam},
		Required:    []string{"symbol"},
		SideEffect:  models.EffectPure,
	}, r.wrapAnalyzeTechnicals)

	r.register("assess_risk", Metadata{
		Description: "Assess current portfolio concentration and drawdown risk",
		Parameters:  map[string]any{},
		SideEffect:  models.EffectReadPortfolio,
	}, r.wrapAssessRisk)

	r.register("analyze_sentiment", Metadata{
		Description: "Score sentiment from context text and recent price action",
		Parameters: map[string]any{
			"symbol": symbolParam,
			"text":   map[string]any{"type": "string", "description": "optional news or context text"},
		},
		Required:   []string{"symbol"},
		SideEffect: models.EffectPure,
	}, r.wrapAnalyzeSentiment)

	r.register("validate_trade", Metadata{
		Description: "Validate a proposed trade against lot size, position weight, holdings and daily limits",
		Parameters: map[string]any{
			"symbol":      symbolParam,
			"side":        map[string]any{"type": "string", "enum": []string{"buy", "sell"}},
			"quantity":    map[string]any{"type": "integer", "description": "shares, must be a lot multiple"},
			"limit_price": map[string]any{"type": "number", "description": "optional limit price"},
		},
		Required:   []string{"symbol", "side", "quantity"},
		SideEffect: models.EffectReadPortfolio,
	}, r.wrapValidateTrade)

	r.register("get_portfolio", Metadata{
		Description: "Get current holdings, cash and total value",
		Parameters:  map[string]any{},
		SideEffect:  models.EffectReadPortfolio,
	}, r.wrapGetPortfolio)

	r.register("simulate_buy", Metadata{
		Description: "Execute a simulated buy at the quoted price, or at a limit if it crosses",
		Parameters: map[string]any{
			"symbol":      symbolParam,
			"quantity":    map[string]any{"type": "integer", "description": "shares, must be a lot multiple"},
			"limit_price": map[string]any{"type": "number", "description": "optional limit price"},
			"reason":      map[string]any{"type": "string", "description": "decision rationale"},
		},
		Required:   []string{"symbol", "quantity"},
		SideEffect: models.EffectWriteTrade,
	}, r.wrapSimulateBuy)

	r.register("simulate_sell", Metadata{
		Description: "Execute a simulated sell at the quoted price, or at a limit if it crosses",
		Parameters: map[string]any{
			"symbol":      symbolParam,
			"quantity":    map[string]any{"type": "integer", "description": "shares, must be a lot multiple"},
			"limit_price": map[string]any{"type": "number", "description": "optional limit price"},
			"reason":      map[string]any{"type": "string", "description": "decision rationale"},
		},
		Required:   []string{"symbol", "quantity"},
		SideEffect: models.EffectWriteTrade,
	}, r.wrapSimulateSell)

	r.register("record_strategy_change", Metadata{
		Description: "Append an immutable strategy-change record extending future instructions",
		Parameters: map[string]any{
			"trigger_kind":   map[string]any{"type": "string", "enum": []string{"manual", "auto_performance", "auto_market", "auto_time", "scheduled"}},
			"trigger_reason": map[string]any{"type": "string"},
			"addition":       map[string]any{"type": "string", "description": "text appended to future instructions"},
			"summary":        map[string]any{"type": "string"},
			"explanation":    map[string]any{"type": "string"},
		},
		Required:   []string{"trigger_kind", "addition", "summary"},
		SideEffect: models.EffectWriteStrategy,
	}, r.wrapRecordStrategyChange)

	logger.Info("tool registry initialized",
		zap.Int("tools_registered", len(r.tools)),
	)
}

func (r *Registry) register(name string, metadata Metadata, fn ToolFunc) {
	metadata.Name = name
	r.tools[name] = fn
	r.metadata[name] = metadata
}

// ============ TOOL WRAPPERS ============
// Each wrapper handles parameter extraction and type conversion.

func (r *Registry) wrapGetStockPrice(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.GetStockPrice(ctx, symbol)
}

func (r *Registry) wrapGetCompanyProfile(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.GetCompanyProfile(ctx, symbol)
}

func (r *Registry) wrapGetIncomeStatement(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.GetIncomeStatement(ctx, symbol, optInt(params, "year"), optInt(params, "season"))
}

func (r *Registry) wrapGetBalanceSheet(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.GetBalanceSheet(ctx, symbol, optInt(params, "year"), optInt(params, "season"))
}

func (r *Registry) wrapGetDailyTrading(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.GetDailyTrading(ctx, symbol, optString(params, "date"))
}

func (r *Registry) wrapCheckTradingDay(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	date := optString(params, "date")
	return r.kit.CheckTradingDay(ctx, date)
}

func (r *Registry) wrapCalculateTechnicalIndicators(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	series, err := parseSeries(params, "series")
	if err != nil {
		return nil, err
	}
	return r.kit.CalculateTechnicalIndicators(ctx, symbol, series)
}

func (r *Registry) wrapAnalyzeFundamentals(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.AnalyzeFundamentals(ctx, symbol)
}

func (r *Registry) wrapAnalyzeTechnicals(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.kit.AnalyzeTechnicals(ctx, symbol)
}

func (r *Registry) wrapAssessRisk(ctx context.Context, scope Scope, _ map[string]any) (any, error) {
	return r.kit.AssessRisk(ctx, scope)
}

func (r *Registry) wrapAnalyzeSentiment(ctx context.Context, _ Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	text := optString(params, "text")
	return r.kit.AnalyzeSentiment(ctx, symbol, text)
}

func (r *Registry) wrapValidateTrade(ctx context.Context, scope Scope, params map[string]any) (any, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	sideRaw, err := getString(params, "side")
	if err != nil {
		return nil, err
	}
	side := models.TradeSide(sideRaw)
	if side != models.SideBuy && side != models.SideSell {
		return nil, apperrors.Validationf("bad_side", "side must be buy or sell").WithField("side")
	}
	quantity, err := getInt64(params, "quantity")
	if err != nil {
		return nil, err
	}
	limit := optDecimal(params, "limit_price")
	return r.kit.ValidateTrade(ctx, scope, symbol, side, quantity, limit)
}

func (r *Registry) wrapGetPortfolio(ctx context.Context, scope Scope, _ map[string]any) (any, error) {
	return r.kit.GetPortfolio(ctx, scope)
}

func (r *Registry) wrapSimulateBuy(ctx context.Context, scope Scope, params map[string]any) (any, error) {
	symbol, quantity, limit, reason, err := tradeParams(params)
	if err != nil {
		return nil, err
	}
	return r.kit.SimulateBuy(ctx, scope, symbol, quantity, limit, reason)
}

func (r *Registry) wrapSimulateSell(ctx context.Context, scope Scope, params map[string]any) (any, error) {
	symbol, quantity, limit, reason, err := tradeParams(params)
	if err != nil {
		return nil, err
	}
	return r.kit.SimulateSell(ctx, scope, symbol, quantity, limit, reason)
}

func (r *Registry) wrapRecordStrategyChange(ctx context.Context, scope Scope, params map[string]any) (any, error) {
	triggerRaw, err := getString(params, "trigger_kind")
	if err != nil {
		return nil, err
	}
	addition, err := getString(params, "addition")
	if err != nil {
		return nil, err
	}
	summary, err := getString(params, "summary")
	if err != nil {
		return nil, err
	}
	return r.kit.RecordStrategyChange(ctx, scope,
		models.TriggerKind(triggerRaw),
		optString(params, "trigger_reason"),
		addition,
		summary,
		optString(params, "explanation"),
	)
}

func tradeParams(params map[string]any) (string, int64, *decimal.Decimal, string, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return "", 0, nil, "", err
	}
	quantity, err := getInt64(params, "quantity")
	if err != nil {
		return "", 0, nil, "", err
	}
	return symbol, quantity, optDecimal(params, "limit_price"), optString(params, "reason"), nil
}

// ============ PARAMETER HELPERS ============

func getString(params map[string]any, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", apperrors.Validationf("missing_param", "missing required parameter: %s", key).WithField(key)
	}
	str, ok := val.(string)
	if !ok {
		return "", apperrors.Validationf("bad_param", "parameter %s must be string, got %T", key, val).WithField(key)
	}
	return str, nil
}

func optString(params map[string]any, key string) string {
	if val, ok := params[key].(string); ok {
		return val
	}
	return ""
}

func getInt64(params map[string]any, key string) (int64, error) {
	val, ok := params[key]
	if !ok {
		return 0, apperrors.Validationf("missing_param", "missing required parameter: %s", key).WithField(key)
	}
	// JSON numbers arrive as float64.
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, apperrors.Validationf("bad_param", "parameter %s must be number, got %T", key, val).WithField(key)
	}
}

func optInt(params map[string]any, key string) int {
	val, ok := params[key]
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

func optDecimal(params map[string]any, key string) *decimal.Decimal {
	val, ok := params[key]
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case float64:
		d := decimal.NewFromFloat(v)
		return &d
	case int:
		d := decimal.NewFromInt(int64(v))
		return &d
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return &d
		}
	}
	return nil
}

// parseSeries decodes an optional bar array via a JSON round trip
func parseSeries(params map[string]any, key string) ([]models.DailyTrading, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.Validationf("bad_param", "parameter %s is not a bar array", key).WithField(key)
	}
	var series []models.DailyTrading
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, apperrors.Validationf("bad_param", "parameter %s is not a bar array", key).WithField(key)
	}
	return series, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
