package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/models"
)

// TradeRequest is one proposed trade to validate
type TradeRequest struct {
	Symbol          string
	Side            models.TradeSide
	Quantity        int64
	Price           decimal.Decimal
	PortfolioValue  decimal.Decimal
	HeldQuantity    int64
	DailyTradeCount int
}

// TradeValidation is the structured verdict of validate_trade
type TradeValidation struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	RiskScore int      `json:"risk_score"`
}

// Validator scores proposed trades against the Taiwan market rule set
type Validator struct {
	cfg config.TradingConfig
}

// NewValidator creates a trade validator
func NewValidator(cfg config.TradingConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Risk weights per failed rule; the score is capped at 100.
const (
	weightBadSymbol     = 30
	weightOddLot        = 25
	weightSmallNotional = 10
	weightOverweight    = 25
	weightShortSell     = 30
	weightDailyLimit    = 20
)

// ValidateTrade checks every rule and accumulates errors, warnings and a
// 0-100 risk score. A score of 50 or more with no hard errors still
// validates but carries a warning.
func (v *Validator) ValidateTrade(req TradeRequest) *TradeValidation {
	result := &TradeValidation{
		Errors:   []string{},
		Warnings: []string{},
	}
	score := 0

	if len(req.Symbol) < 4 {
		result.Errors = append(result.Errors, fmt.Sprintf("symbol %q is invalid: must be at least 4 characters", req.Symbol))
		score += weightBadSymbol
	}

	if req.Quantity <= 0 {
		result.Errors = append(result.Errors, "quantity must be positive")
		score += weightOddLot
	} else if req.Quantity%v.cfg.LotSize != 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("quantity %d is not a multiple of the lot size %d", req.Quantity, v.cfg.LotSize))
		score += weightOddLot
	}

	notional := req.Price.Mul(decimal.NewFromInt(req.Quantity))

	minNotional := decimal.NewFromFloat(v.cfg.MinTradeAmount)
	if notional.LessThan(minNotional) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("notional %s is below the minimum trade amount %s", notional.StringFixed(0), minNotional.StringFixed(0)))
		score += weightSmallNotional
	}

	if req.Side == models.SideBuy && req.PortfolioValue.GreaterThan(decimal.Zero) {
		weight := models.ToFloat64(notional.Div(req.PortfolioValue))
		if weight > v.cfg.MaxPositionWeight {
			result.Errors = append(result.Errors, fmt.Sprintf("position weight %.1f%% exceeds the %.1f%% ceiling", weight*100, v.cfg.MaxPositionWeight*100))
			score += weightOverweight
		}
	}

	if req.Side == models.SideSell && req.HeldQuantity < req.Quantity {
		result.Errors = append(result.Errors, fmt.Sprintf("holding %d shares, cannot sell %d", req.HeldQuantity, req.Quantity))
		score += weightShortSell
	}

	if req.DailyTradeCount >= v.cfg.MaxDailyTrades {
		result.Errors = append(result.Errors, fmt.Sprintf("daily trade limit of %d reached", v.cfg.MaxDailyTrades))
		score += weightDailyLimit
	}

	if score > 100 {
		score = 100
	}
	result.RiskScore = score
	result.Valid = len(result.Errors) == 0

	if result.Valid && score >= 50 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("elevated risk score %d, review before executing", score))
	}

	return result
}
