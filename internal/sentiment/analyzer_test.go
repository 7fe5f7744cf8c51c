package sentiment

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/models"
)

func flatBars(n int, close float64, volume int64) []models.DailyTrading {
	bars := make([]models.DailyTrading, n)
	for i := range bars {
		bars[i] = models.DailyTrading{
			Symbol: "2330",
			Close:  decimal.NewFromFloat(close),
			Volume: volume,
		}
	}
	return bars
}

func TestAnalyzer_ScoreText(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name     string
		text     string
		positive bool
		negative bool
	}{
		{name: "empty", text: ""},
		{name: "no keywords", text: "the company reported quarterly results"},
		{name: "bullish text", text: "shares surge after record profit and strong growth", positive: true},
		{name: "bearish text", text: "stock tumbles on downgrade, analysts warn of recession", negative: true},
		{name: "punctuation stripped", text: "Rally! Breakout.", positive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := a.ScoreText(tt.text)
			if score < -1 || score > 1 {
				t.Fatalf("score %f outside [-1, 1]", score)
			}
			if tt.positive && score <= 0 {
				t.Errorf("expected positive score, got %f", score)
			}
			if tt.negative && score >= 0 {
				t.Errorf("expected negative score, got %f", score)
			}
			if !tt.positive && !tt.negative && score != 0 {
				t.Errorf("expected zero score, got %f", score)
			}
		})
	}
}

func TestAnalyzer_ScoreMarketAction(t *testing.T) {
	a := NewAnalyzer()

	t.Run("too few bars", func(t *testing.T) {
		if score := a.ScoreMarketAction(flatBars(5, 100, 1000)); score != 0 {
			t.Errorf("score = %f, want 0", score)
		}
	})

	t.Run("flat market", func(t *testing.T) {
		if score := a.ScoreMarketAction(flatBars(10, 100, 1000)); score != 0 {
			t.Errorf("score = %f, want 0", score)
		}
	})

	t.Run("rising close is positive", func(t *testing.T) {
		bars := flatBars(10, 100, 1000)
		bars[len(bars)-1].Close = decimal.NewFromFloat(103)
		score := a.ScoreMarketAction(bars)
		if score <= 0 {
			t.Errorf("score = %f, want positive", score)
		}
	})

	t.Run("falling close is negative", func(t *testing.T) {
		bars := flatBars(10, 100, 1000)
		bars[len(bars)-1].Close = decimal.NewFromFloat(97)
		if score := a.ScoreMarketAction(bars); score >= 0 {
			t.Errorf("score = %f, want negative", score)
		}
	})

	t.Run("volume spike amplifies momentum", func(t *testing.T) {
		base := flatBars(10, 100, 1000)
		base[len(base)-1].Close = decimal.NewFromFloat(102)
		quiet := a.ScoreMarketAction(base)

		spiked := flatBars(10, 100, 1000)
		spiked[len(spiked)-1].Close = decimal.NewFromFloat(102)
		spiked[len(spiked)-1].Volume = 5000
		loud := a.ScoreMarketAction(spiked)

		if loud <= quiet {
			t.Errorf("volume spike should amplify: quiet=%f loud=%f", quiet, loud)
		}
	})

	t.Run("saturates at one", func(t *testing.T) {
		bars := flatBars(10, 100, 1000)
		bars[len(bars)-1].Close = decimal.NewFromFloat(150)
		if score := a.ScoreMarketAction(bars); score != 1 {
			t.Errorf("score = %f, want saturated 1", score)
		}
	})
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer()

	t.Run("labels", func(t *testing.T) {
		tests := []struct {
			name  string
			text  string
			close float64
			label string
		}{
			{name: "bullish", text: "record rally, strong surge", close: 105, label: "bullish"},
			{name: "bearish", text: "crash and selloff, bearish downgrade", close: 95, label: "bearish"},
			{name: "neutral", text: "", close: 100, label: "neutral"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				bars := flatBars(10, 100, 1000)
				bars[len(bars)-1].Close = decimal.NewFromFloat(tt.close)
				report := a.Analyze("2330", tt.text, bars)
				if report.Label != tt.label {
					t.Errorf("label = %q, want %q (overall %f)", report.Label, tt.label, report.Overall)
				}
				if report.Symbol != "2330" {
					t.Errorf("symbol = %q", report.Symbol)
				}
			})
		}
	})

	t.Run("no text means market score only", func(t *testing.T) {
		bars := flatBars(10, 100, 1000)
		bars[len(bars)-1].Close = decimal.NewFromFloat(103)
		report := a.Analyze("2330", "", bars)
		if report.TextScore != 0 {
			t.Errorf("text score = %f, want 0", report.TextScore)
		}
		if report.Overall != report.MarketScore {
			t.Errorf("overall = %f, want market score %f", report.Overall, report.MarketScore)
		}
	})
}
