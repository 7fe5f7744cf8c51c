package risk

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/models"
)

func testValidator() *Validator {
	return NewValidator(config.TradingConfig{
		LotSize:           1000,
		FeeRate:           0.001425,
		SellTaxRate:       0.003,
		MinTradeAmount:    50000,
		MaxDailyTrades:    20,
		MaxPositionWeight: 0.3,
	})
}

func TestValidator_ValidateTrade(t *testing.T) {
	tests := []struct {
		name      string
		req       TradeRequest
		valid     bool
		errSubstr string
		warns     int
		score     int
	}{
		{
			name: "clean buy",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideBuy, Quantity: 1000,
				Price:          decimal.NewFromFloat(580),
				PortfolioValue: decimal.NewFromInt(10_000_000),
			},
			valid: true,
			score: 0,
		},
		{
			name: "odd lot",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideBuy, Quantity: 500,
				Price:          decimal.NewFromFloat(580),
				PortfolioValue: decimal.NewFromInt(10_000_000),
			},
			valid:     false,
			errSubstr: "lot size",
			score:     25,
		},
		{
			name: "short symbol",
			req: TradeRequest{
				Symbol: "33", Side: models.SideBuy, Quantity: 1000,
				Price:          decimal.NewFromFloat(580),
				PortfolioValue: decimal.NewFromInt(10_000_000),
			},
			valid:     false,
			errSubstr: "invalid",
			score:     30,
		},
		{
			name: "small notional warns only",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideBuy, Quantity: 1000,
				Price:          decimal.NewFromFloat(20),
				PortfolioValue: decimal.NewFromInt(10_000_000),
			},
			valid: true,
			warns: 1,
			score: 10,
		},
		{
			name: "position overweight",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideBuy, Quantity: 1000,
				Price:          decimal.NewFromFloat(580),
				PortfolioValue: decimal.NewFromInt(1_000_000),
			},
			valid:     false,
			errSubstr: "ceiling",
			score:     25,
		},
		{
			name: "short sell blocked",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideSell, Quantity: 2000,
				Price:          decimal.NewFromFloat(580),
				PortfolioValue: decimal.NewFromInt(10_000_000),
				HeldQuantity:   1000,
			},
			valid:     false,
			errSubstr: "cannot sell",
			score:     30,
		},
		{
			name: "daily limit reached",
			req: TradeRequest{
				Symbol: "2330", Side: models.SideBuy, Quantity: 1000,
				Price:           decimal.NewFromFloat(580),
				PortfolioValue:  decimal.NewFromInt(10_000_000),
				DailyTradeCount: 20,
			},
			valid:     false,
			errSubstr: "daily trade limit",
			score:     20,
		},
	}

	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateTrade(tt.req)
			if result.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (errors: %v)", result.Valid, tt.valid, result.Errors)
			}
			if tt.errSubstr != "" {
				found := false
				for _, e := range result.Errors {
					if strings.Contains(e, tt.errSubstr) {
						found = true
					}
				}
				if !found {
					t.Errorf("errors %v missing substring %q", result.Errors, tt.errSubstr)
				}
			}
			if tt.warns > 0 && len(result.Warnings) != tt.warns {
				t.Errorf("warnings = %d, want %d (%v)", len(result.Warnings), tt.warns, result.Warnings)
			}
			if result.RiskScore != tt.score {
				t.Errorf("risk score = %d, want %d", result.RiskScore, tt.score)
			}
		})
	}
}

func TestValidator_ScoreCap(t *testing.T) {
	v := testValidator()
	result := v.ValidateTrade(TradeRequest{
		Symbol: "x", Side: models.SideSell, Quantity: 500,
		Price:           decimal.NewFromFloat(1),
		DailyTradeCount: 99,
	})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if result.RiskScore != 100 {
		t.Errorf("risk score = %d, want capped 100", result.RiskScore)
	}
}

func TestValidator_ElevatedScoreWarning(t *testing.T) {
	// Two warning-weight rules alone cannot reach 50, so drive the score up
	// with a small-notional buy and verify the valid path keeps its warning.
	v := testValidator()
	result := v.ValidateTrade(TradeRequest{
		Symbol: "2330", Side: models.SideBuy, Quantity: 1000,
		Price:          decimal.NewFromFloat(20),
		PortfolioValue: decimal.NewFromInt(10_000_000),
	})
	if !result.Valid {
		t.Fatalf("expected valid, errors: %v", result.Errors)
	}
	if result.RiskScore >= 50 {
		t.Fatalf("setup broken: score %d unexpectedly elevated", result.RiskScore)
	}
	for _, w := range result.Warnings {
		if strings.Contains(w, "elevated risk score") {
			t.Errorf("unexpected elevated-score warning at score %d", result.RiskScore)
		}
	}
}
