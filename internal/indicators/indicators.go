package indicators

import (
	"fmt"

	"github.com/cinar/indicator"
	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/models"
)

// Calculator computes technical indicators over a daily OHLCV series
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate computes the full indicator set from daily bars, oldest first
func (c *Calculator) Calculate(bars []models.DailyTrading) (*models.TechnicalIndicators, error) {
	if len(bars) < 26 {
		return nil, fmt.Errorf("insufficient bars for indicators (need at least 26, got %d)", len(bars))
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
		volumes[i] = float64(bar.Volume)
	}

	_, rsi14 := indicator.Rsi(closes)
	if len(rsi14) < 14 {
		return nil, fmt.Errorf("insufficient RSI data")
	}
	rsi14 = rsi14[13:] // warmup period

	macdLine, signalLine := indicator.Macd(closes)
	histogram := make([]float64, len(macdLine))
	for i := range macdLine {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	bbMiddle, bbUpper, bbLower := indicator.BollingerBands(closes)

	volumeAvg := average(volumes)
	currentVolume := volumes[len(volumes)-1]
	volumeRatio := 0.0
	if volumeAvg > 0 {
		volumeRatio = currentVolume / volumeAvg
	}

	result := &models.TechnicalIndicators{
		RSI: map[string]decimal.Decimal{
			"14": models.NewDecimal(rsi14[len(rsi14)-1]),
		},
		MACD: &models.MACDIndicator{
			MACD:      models.NewDecimal(macdLine[len(macdLine)-1]),
			Signal:    models.NewDecimal(signalLine[len(signalLine)-1]),
			Histogram: models.NewDecimal(histogram[len(histogram)-1]),
		},
		BollingerBands: &models.BollingerBandsIndicator{
			Upper:  models.NewDecimal(bbUpper[len(bbUpper)-1]),
			Middle: models.NewDecimal(bbMiddle[len(bbMiddle)-1]),
			Lower:  models.NewDecimal(bbLower[len(bbLower)-1]),
		},
		Volume: &models.VolumeIndicator{
			Current: models.NewDecimal(currentVolume),
			Average: models.NewDecimal(volumeAvg),
			Ratio:   models.NewDecimal(volumeRatio),
		},
		SMA: map[string]decimal.Decimal{},
		EMA: map[string]decimal.Decimal{},
	}

	for _, period := range []int{5, 20} {
		if sma, err := c.CalculateSMA(bars, period); err == nil {
			result.SMA[fmt.Sprintf("%d", period)] = models.NewDecimal(sma)
		}
		if ema, err := c.CalculateEMA(bars, period); err == nil {
			result.EMA[fmt.Sprintf("%d", period)] = models.NewDecimal(ema)
		}
	}

	return result, nil
}

// CalculateRSI computes RSI for a specific period
func (c *Calculator) CalculateRSI(bars []models.DailyTrading, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("insufficient bars for RSI calculation")
	}

	_, rsi := indicator.Rsi(closesOf(bars))
	if len(rsi) == 0 {
		return 0, fmt.Errorf("RSI returned no data")
	}
	return rsi[len(rsi)-1], nil
}

// CalculateEMA computes an exponential moving average
func (c *Calculator) CalculateEMA(bars []models.DailyTrading, period int) (float64, error) {
	if len(bars) < period {
		return 0, fmt.Errorf("insufficient bars for EMA calculation")
	}

	ema := indicator.Ema(period, closesOf(bars))
	if len(ema) == 0 {
		return 0, fmt.Errorf("EMA calculation failed")
	}
	return ema[len(ema)-1], nil
}

// CalculateSMA computes a simple moving average
func (c *Calculator) CalculateSMA(bars []models.DailyTrading, period int) (float64, error) {
	if len(bars) < period {
		return 0, fmt.Errorf("insufficient bars for SMA calculation")
	}

	sma := indicator.Sma(period, closesOf(bars))
	if len(sma) == 0 {
		return 0, fmt.Errorf("SMA calculation failed")
	}
	return sma[len(sma)-1], nil
}

func closesOf(bars []models.DailyTrading) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
	}
	return closes
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
