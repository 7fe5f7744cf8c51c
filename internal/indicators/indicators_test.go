package indicators

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/models"
)

// risingBars builds n bars with a steady uptrend
func risingBars(n int) []models.DailyTrading {
	bars := make([]models.DailyTrading, n)
	for i := range bars {
		price := 100.0 + float64(i)
		bars[i] = models.DailyTrading{
			Symbol: "2330",
			Date:   fmt.Sprintf("2026-01-%02d", i%28+1),
			Open:   decimal.NewFromFloat(price - 0.5),
			High:   decimal.NewFromFloat(price + 1),
			Low:    decimal.NewFromFloat(price - 1),
			Close:  decimal.NewFromFloat(price),
			Volume: 1000 + int64(i)*10,
		}
	}
	return bars
}

func TestCalculator_Calculate(t *testing.T) {
	c := NewCalculator()

	t.Run("insufficient bars", func(t *testing.T) {
		if _, err := c.Calculate(risingBars(25)); err == nil {
			t.Error("expected error for fewer than 26 bars")
		}
	})

	t.Run("full set over uptrend", func(t *testing.T) {
		result, err := c.Calculate(risingBars(40))
		if err != nil {
			t.Fatalf("calculate failed: %v", err)
		}

		rsi, ok := result.RSI["14"]
		if !ok {
			t.Fatal("RSI 14 missing")
		}
		// A monotone uptrend drives RSI to the ceiling.
		if !rsi.Equal(decimal.NewFromInt(100)) {
			t.Errorf("RSI = %s, want 100 for a pure uptrend", rsi)
		}

		if result.MACD == nil {
			t.Fatal("MACD missing")
		}
		diff := result.MACD.MACD.Sub(result.MACD.Signal).Sub(result.MACD.Histogram).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(1e-9)) {
			t.Errorf("histogram should equal macd minus signal, off by %s", diff)
		}

		bb := result.BollingerBands
		if bb == nil {
			t.Fatal("Bollinger bands missing")
		}
		if !bb.Upper.GreaterThan(bb.Middle) || !bb.Middle.GreaterThan(bb.Lower) {
			t.Errorf("band ordering broken: upper=%s middle=%s lower=%s", bb.Upper, bb.Middle, bb.Lower)
		}

		if _, ok := result.SMA["5"]; !ok {
			t.Error("SMA 5 missing")
		}
		if _, ok := result.SMA["20"]; !ok {
			t.Error("SMA 20 missing")
		}
		if _, ok := result.EMA["20"]; !ok {
			t.Error("EMA 20 missing")
		}

		// In an uptrend the short average leads the long one.
		if !result.SMA["5"].GreaterThan(result.SMA["20"]) {
			t.Errorf("SMA5 %s should exceed SMA20 %s in an uptrend", result.SMA["5"], result.SMA["20"])
		}

		if result.Volume == nil {
			t.Fatal("volume stats missing")
		}
		if !result.Volume.Ratio.GreaterThan(decimal.NewFromInt(1)) {
			t.Errorf("rising volume should put the ratio above 1, got %s", result.Volume.Ratio)
		}
	})
}

func TestCalculator_SMA(t *testing.T) {
	c := NewCalculator()

	bars := risingBars(10)
	sma, err := c.CalculateSMA(bars, 5)
	if err != nil {
		t.Fatalf("SMA failed: %v", err)
	}
	// Last five closes are 105..109.
	if sma != 107 {
		t.Errorf("SMA = %f, want 107", sma)
	}

	if _, err := c.CalculateSMA(bars, 11); err == nil {
		t.Error("expected error when period exceeds bar count")
	}
}

func TestCalculator_EMA(t *testing.T) {
	c := NewCalculator()

	bars := risingBars(30)
	ema, err := c.CalculateEMA(bars, 5)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}
	lastClose, _ := bars[len(bars)-1].Close.Float64()
	if ema <= 0 || ema > lastClose {
		t.Errorf("EMA = %f out of range (last close %f)", ema, lastClose)
	}

	if _, err := c.CalculateEMA(bars[:3], 5); err == nil {
		t.Error("expected error when period exceeds bar count")
	}
}

func TestCalculator_RSI(t *testing.T) {
	c := NewCalculator()

	rsi, err := c.CalculateRSI(risingBars(30), 14)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if rsi != 100 {
		t.Errorf("RSI = %f, want 100 for a pure uptrend", rsi)
	}

	if _, err := c.CalculateRSI(risingBars(10), 14); err == nil {
		t.Error("expected error for insufficient bars")
	}
}
