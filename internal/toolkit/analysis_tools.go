package toolkit

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/sentiment"
	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

// CalculateTechnicalIndicators computes the indicator set over the bar
// series accumulated for a symbol. A series supplied in params wins over
// the accumulated one.
func (t *Toolkit) CalculateTechnicalIndicators(ctx context.Context, symbol string, series []models.DailyTrading) (*models.TechnicalIndicators, error) {
	if len(series) > 0 {
		t.rememberBars(symbol, series)
	} else {
		series = t.bars(symbol)
	}
	if len(series) < 26 {
		return nil, apperrors.Validationf("insufficient_series", "need at least 26 daily bars for %s, have %d", symbol, len(series)).
			WithField("series")
	}
	return t.calculator.Calculate(series)
}

// FundamentalAnalysis is the structured output of analyze_fundamentals
type FundamentalAnalysis struct {
	Symbol       string   `json:"symbol"`
	Revenue      *float64 `json:"revenue,omitempty"`
	NetIncome    *float64 `json:"net_income,omitempty"`
	NetMargin    *float64 `json:"net_margin_pct,omitempty"`
	TotalAssets  *float64 `json:"total_assets,omitempty"`
	TotalDebt    *float64 `json:"total_debt,omitempty"`
	DebtRatio    *float64 `json:"debt_ratio_pct,omitempty"`
	Assessment   string   `json:"assessment"`
	Observations []string `json:"observations"`
}

// Reported financial statements use ROC-era field names.
var (
	revenueKeys   = []string{"營業收入", "收入", "營業收入合計"}
	netIncomeKeys = []string{"本期淨利（淨損）", "本期淨利(淨損)", "稅後淨利"}
	assetKeys     = []string{"資產總額", "資產總計", "資產合計"}
	debtKeys      = []string{"負債總額", "負債總計", "負債合計"}
)

// AnalyzeFundamentals fetches both statements through the gateway and
// computes coarse profitability and leverage ratios
func (t *Toolkit) AnalyzeFundamentals(ctx context.Context, symbol string) (*FundamentalAnalysis, error) {
	income, err := t.fetchMarket(ctx, symbol, models.KindIncome, false)
	if err != nil {
		return nil, err
	}
	balance, err := t.fetchMarket(ctx, symbol, models.KindBalanceSheet, false)
	if err != nil {
		return nil, err
	}

	analysis := &FundamentalAnalysis{Symbol: symbol, Observations: []string{}}

	if stmt, ok := income.Data.(*models.FinancialStatement); ok {
		if v, found := firstItem(stmt.Items, revenueKeys); found {
			analysis.Revenue = floatPtr(v)
		}
		if v, found := firstItem(stmt.Items, netIncomeKeys); found {
			analysis.NetIncome = floatPtr(v)
		}
	}
	if stmt, ok := balance.Data.(*models.FinancialStatement); ok {
		if v, found := firstItem(stmt.Items, assetKeys); found {
			analysis.TotalAssets = floatPtr(v)
		}
		if v, found := firstItem(stmt.Items, debtKeys); found {
			analysis.TotalDebt = floatPtr(v)
		}
	}

	if analysis.Revenue != nil && analysis.NetIncome != nil && *analysis.Revenue != 0 {
		margin := *analysis.NetIncome / *analysis.Revenue * 100
		analysis.NetMargin = &margin
		switch {
		case margin >= 15:
			analysis.Observations = append(analysis.Observations, "strong net margin")
		case margin < 0:
			analysis.Observations = append(analysis.Observations, "operating at a loss")
		}
	}
	if analysis.TotalAssets != nil && analysis.TotalDebt != nil && *analysis.TotalAssets != 0 {
		ratio := *analysis.TotalDebt / *analysis.TotalAssets * 100
		analysis.DebtRatio = &ratio
		if ratio > 60 {
			analysis.Observations = append(analysis.Observations, "high leverage")
		}
	}

	switch {
	case analysis.NetMargin == nil && analysis.DebtRatio == nil:
		analysis.Assessment = "insufficient data"
	case analysis.NetMargin != nil && *analysis.NetMargin < 0:
		analysis.Assessment = "weak"
	case analysis.NetMargin != nil && *analysis.NetMargin >= 15 && (analysis.DebtRatio == nil || *analysis.DebtRatio <= 60):
		analysis.Assessment = "healthy"
	default:
		analysis.Assessment = "mixed"
	}

	return analysis, nil
}

// TechnicalAnalysis is the structured output of analyze_technicals
type TechnicalAnalysis struct {
	Symbol     string                      `json:"symbol"`
	Indicators *models.TechnicalIndicators `json:"indicators"`
	Signals    []string                    `json:"signals"`
	Bias       string                      `json:"bias"` // "bullish", "neutral", "bearish"
}

// AnalyzeTechnicals computes indicators and derives coarse trading signals
func (t *Toolkit) AnalyzeTechnicals(ctx context.Context, symbol string) (*TechnicalAnalysis, error) {
	series := t.bars(symbol)
	if len(series) < 26 {
		return nil, apperrors.Validationf("insufficient_series", "need at least 26 daily bars for %s, have %d", symbol, len(series)).
			WithField("series")
	}

	ind, err := t.calculator.Calculate(series)
	if err != nil {
		return nil, apperrors.Internalf("indicator_failed", "indicator calculation for %s failed", symbol).WithCause(err)
	}

	analysis := &TechnicalAnalysis{Symbol: symbol, Indicators: ind, Signals: []string{}}
	score := 0

	if rsi, ok := ind.RSI["14"]; ok {
		v := models.ToFloat64(rsi)
		switch {
		case v >= 70:
			analysis.Signals = append(analysis.Signals, "RSI overbought")
			score--
		case v <= 30:
			analysis.Signals = append(analysis.Signals, "RSI oversold")
			score++
		}
	}
	if ind.MACD != nil {
		if ind.MACD.Histogram.GreaterThan(decimal.Zero) {
			analysis.Signals = append(analysis.Signals, "MACD histogram positive")
			score++
		} else if ind.MACD.Histogram.LessThan(decimal.Zero) {
			analysis.Signals = append(analysis.Signals, "MACD histogram negative")
			score--
		}
	}
	if ind.BollingerBands != nil && len(series) > 0 {
		last := series[len(series)-1].Close
		if last.GreaterThan(ind.BollingerBands.Upper) {
			analysis.Signals = append(analysis.Signals, "price above upper Bollinger band")
			score--
		} else if last.LessThan(ind.BollingerBands.Lower) {
			analysis.Signals = append(analysis.Signals, "price below lower Bollinger band")
			score++
		}
	}
	if ind.Volume != nil && ind.Volume.Ratio.GreaterThan(decimal.NewFromFloat(1.5)) {
		analysis.Signals = append(analysis.Signals, "volume well above average")
	}

	switch {
	case score > 0:
		analysis.Bias = "bullish"
	case score < 0:
		analysis.Bias = "bearish"
	default:
		analysis.Bias = "neutral"
	}

	return analysis, nil
}

// RiskAssessment is the structured output of assess_risk
type RiskAssessment struct {
	AgentID       string   `json:"agent_id"`
	CashRatio     float64  `json:"cash_ratio"`
	LargestWeight float64  `json:"largest_position_weight"`
	PositionCount int      `json:"position_count"`
	Concentrated  bool     `json:"concentrated"`
	Flags         []string `json:"flags"`
	OverallRisk   string   `json:"overall_risk"` // "low", "medium", "high"
}

// AssessRisk evaluates the agent's current portfolio concentration
func (t *Toolkit) AssessRisk(ctx context.Context, scope Scope) (*RiskAssessment, error) {
	summary, err := t.engine.Snapshot(ctx, scope.AgentID, scope.InitialFunds)
	if err != nil {
		return nil, err
	}

	assessment := &RiskAssessment{
		AgentID:       scope.AgentID,
		PositionCount: len(summary.Positions),
		Flags:         []string{},
	}

	if summary.TotalValue.GreaterThan(decimal.Zero) {
		assessment.CashRatio = models.ToFloat64(summary.Cash.Div(summary.TotalValue))
		for _, pos := range summary.Positions {
			weight := models.ToFloat64(pos.MarketValue.Div(summary.TotalValue))
			if weight > assessment.LargestWeight {
				assessment.LargestWeight = weight
			}
		}
	}

	if assessment.LargestWeight > t.trading.MaxPositionWeight {
		assessment.Concentrated = true
		assessment.Flags = append(assessment.Flags, "largest position exceeds the configured weight ceiling")
	}
	if assessment.CashRatio < 0.05 && assessment.PositionCount > 0 {
		assessment.Flags = append(assessment.Flags, "cash buffer below 5%")
	}
	if summary.ReturnPct < -10 {
		assessment.Flags = append(assessment.Flags, "portfolio drawdown beyond 10%")
	}

	switch {
	case len(assessment.Flags) >= 2:
		assessment.OverallRisk = "high"
	case len(assessment.Flags) == 1:
		assessment.OverallRisk = "medium"
	default:
		assessment.OverallRisk = "low"
	}

	return assessment, nil
}

// AnalyzeSentiment combines free-text context with recent price action
func (t *Toolkit) AnalyzeSentiment(ctx context.Context, symbol, text string) (*sentiment.Report, error) {
	return t.analyzer.Analyze(symbol, text, t.bars(symbol)), nil
}

func firstItem(items map[string]decimal.Decimal, keys []string) (decimal.Decimal, bool) {
	for _, key := range keys {
		if v, ok := items[key]; ok {
			return v, true
		}
	}
	// Fall back to substring match; reported field names vary by filing.
	for _, key := range keys {
		for field, v := range items {
			if strings.Contains(field, key) {
				return v, true
			}
		}
	}
	return decimal.Zero, false
}

func floatPtr(d decimal.Decimal) *float64 {
	v := models.ToFloat64(d)
	return &v
}
