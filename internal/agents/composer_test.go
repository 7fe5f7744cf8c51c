package agents

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/models"
)

func testProfile() models.AgentProfile {
	return models.AgentProfile{
		ID:            "a1",
		Name:          "Momentum Hunter",
		Description:   "Chases medium-term momentum in large caps.",
		Model:         "gpt-4o",
		InitialFunds:  decimal.NewFromInt(1_000_000),
		MaxTurns:      30,
		RiskTolerance: 0.8,
		Preferences: models.InvestmentPreferences{
			AllowedSectors:    []string{"semiconductors", "finance"},
			MaxPositionWeight: 0.3,
			RebalanceCadence:  "weekly",
		},
		CustomInstructions: "Prefer liquid names.",
		AdjustmentCriteria: "Adjust after three losing trades in a row.",
	}
}

func TestComposer_Compose(t *testing.T) {
	composer, err := NewComposer(nil)
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}

	tools := []string{"get_portfolio", "get_stock_price", "simulate_buy"}
	out, err := composer.Compose(testProfile(), models.ModeTrading, tools, nil)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	for _, want := range []string{
		"You are Momentum Hunter",
		"Current mode: trading",
		"- get_stock_price",
		"- simulate_buy",
		"Allowed sectors: semiconductors, finance",
		"Maximum single-position weight: 30%",
		"Rebalance cadence: weekly",
		"risk tolerance is high (0.80",
		"Prefer liquid names.",
		"Adjust after three losing trades in a row.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("instructions missing %q\n%s", want, out)
		}
	}

	if strings.Contains(out, "Strategy evolution log") {
		t.Error("empty change log must omit the evolution section")
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Error("output must end with exactly one newline")
	}
}

func TestComposer_Deterministic(t *testing.T) {
	composer, err := NewComposer(nil)
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}

	profile := testProfile()
	tools := []string{"get_portfolio", "get_stock_price"}
	changes := []models.StrategyChange{
		{
			Trigger:   models.TriggerManual,
			Addition:  "Cap single-day exposure at 20%.",
			CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	}

	first, err := composer.Compose(profile, models.ModeTrading, tools, changes)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := composer.Compose(profile, models.ModeTrading, tools, changes)
		if err != nil {
			t.Fatalf("compose failed: %v", err)
		}
		if again != first {
			t.Fatal("identical inputs must produce byte-identical output")
		}
	}
}

func TestComposer_StrategyLog(t *testing.T) {
	composer, err := NewComposer(nil)
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}

	changes := []models.StrategyChange{
		{
			Trigger:       models.TriggerScheduled,
			TriggerReason: "weekly review",
			Addition:      "Reduce exposure to unprofitable growth names.",
			CreatedAt:     time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
		},
		{
			Trigger:   models.TriggerManual,
			Addition:  "Keep at least 10% cash.",
			CreatedAt: time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC),
		},
	}

	out, err := composer.Compose(testProfile(), models.ModeStrategyReview, []string{"record_strategy_change"}, changes)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	if !strings.Contains(out, "Strategy evolution log") {
		t.Fatal("evolution section missing")
	}
	first := strings.Index(out, "Reduce exposure to unprofitable growth names.")
	second := strings.Index(out, "Keep at least 10% cash.")
	if first < 0 || second < 0 {
		t.Fatalf("change entries missing:\n%s", out)
	}
	if first > second {
		t.Error("changes must render in insertion order")
	}
	if !strings.Contains(out, "2026-03-01 01:00:00 UTC (scheduled)") {
		t.Errorf("change header missing timestamp and trigger:\n%s", out)
	}
	if !strings.Contains(out, "Trigger: weekly review") {
		t.Error("trigger reason missing")
	}
}

func TestComposer_OmitsEmptySections(t *testing.T) {
	composer, err := NewComposer(nil)
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}

	profile := testProfile()
	profile.Description = ""
	profile.CustomInstructions = ""
	profile.AdjustmentCriteria = ""
	profile.Preferences.AllowedSectors = nil
	profile.Preferences.RebalanceCadence = ""

	out, err := composer.Compose(profile, models.ModeObservation, []string{"get_portfolio"}, nil)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	for _, absent := range []string{
		"About you",
		"Allowed sectors",
		"Rebalance cadence",
		"Additional instructions",
		"Strategy adjustment criteria",
	} {
		if strings.Contains(out, absent) {
			t.Errorf("empty section %q must be omitted\n%s", absent, out)
		}
	}
	if !strings.Contains(out, "read-only mode") {
		t.Error("observation responsibilities missing")
	}
}
