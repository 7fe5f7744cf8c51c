package sentiment

import (
	"strings"

	"github.com/twquant/twse-agents/pkg/models"
)

// Analyzer performs simple keyword-based sentiment analysis plus a
// price-action read over recent daily bars
type Analyzer struct {
	positiveWords map[string]float64
	negativeWords map[string]float64
}

// NewAnalyzer creates new sentiment analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positiveWords: buildPositiveWords(),
		negativeWords: buildNegativeWords(),
	}
}

// Report is the structured output of a sentiment analysis
type Report struct {
	Symbol      string  `json:"symbol"`
	TextScore   float64 `json:"text_score"`   // -1.0 to 1.0
	MarketScore float64 `json:"market_score"` // -1.0 to 1.0
	Overall     float64 `json:"overall"`
	Label       string  `json:"label"` // "bullish", "neutral", "bearish"
}

// Analyze combines text sentiment with price action into one report
func (a *Analyzer) Analyze(symbol, text string, bars []models.DailyTrading) *Report {
	textScore := a.ScoreText(text)
	marketScore := a.ScoreMarketAction(bars)

	overall := marketScore
	if text != "" {
		overall = (textScore + marketScore) / 2
	}

	label := "neutral"
	switch {
	case overall >= 0.2:
		label = "bullish"
	case overall <= -0.2:
		label = "bearish"
	}

	return &Report{
		Symbol:      symbol,
		TextScore:   textScore,
		MarketScore: marketScore,
		Overall:     overall,
		Label:       label,
	}
}

// ScoreText analyzes text and returns a sentiment score in [-1, 1]
func (a *Analyzer) ScoreText(text string) float64 {
	if text == "" {
		return 0.0
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0.0
	}

	var score float64
	matchCount := 0

	for _, word := range words {
		word = strings.Trim(word, ".,!?;:")

		if weight, ok := a.positiveWords[word]; ok {
			score += weight
			matchCount++
		}
		if weight, ok := a.negativeWords[word]; ok {
			score -= weight
			matchCount++
		}
	}

	if matchCount == 0 {
		return 0.0
	}

	return clamp(score / float64(len(words)))
}

// ScoreMarketAction reads recent bars: 5-day momentum plus a volume
// confirmation term. Returns 0 when fewer than 6 bars are available.
func (a *Analyzer) ScoreMarketAction(bars []models.DailyTrading) float64 {
	if len(bars) < 6 {
		return 0.0
	}

	last := bars[len(bars)-1]
	prior := bars[len(bars)-6]

	priorClose, _ := prior.Close.Float64()
	lastClose, _ := last.Close.Float64()
	if priorClose <= 0 {
		return 0.0
	}

	// A 5% five-day move saturates the momentum term.
	momentum := clamp((lastClose - priorClose) / priorClose * 20)

	var volumeSum float64
	for _, bar := range bars[len(bars)-6 : len(bars)-1] {
		volumeSum += float64(bar.Volume)
	}
	volumeAvg := volumeSum / 5

	confirmation := 1.0
	if volumeAvg > 0 && float64(last.Volume) > volumeAvg*1.5 {
		confirmation = 1.25
	}

	return clamp(momentum * confirmation)
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// buildPositiveWords returns positive equity-market keywords
func buildPositiveWords() map[string]float64 {
	return map[string]float64{
		"bullish":      1.0,
		"rally":        0.9,
		"surge":        0.8,
		"soar":         0.8,
		"gain":         0.6,
		"profit":       0.6,
		"record":       0.6,
		"beat":         0.7,
		"upgrade":      0.6,
		"growth":       0.5,
		"expansion":    0.5,
		"dividend":     0.4,
		"buyback":      0.5,
		"breakout":     0.7,
		"up":           0.5,
		"rise":         0.5,
		"increase":     0.5,
		"positive":     0.5,
		"optimistic":   0.5,
		"strong":       0.5,
		"outperform":   0.7,
		"innovation":   0.5,
		"partnership":  0.5,
		"breakthrough": 0.6,
	}
}

// buildNegativeWords returns negative equity-market keywords
func buildNegativeWords() map[string]float64 {
	return map[string]float64{
		"bearish":      1.0,
		"crash":        1.0,
		"plunge":       0.9,
		"slump":        0.8,
		"tumble":       0.8,
		"loss":         0.6,
		"miss":         0.7,
		"downgrade":    0.7,
		"decline":      0.5,
		"drop":         0.5,
		"fall":         0.5,
		"weak":         0.5,
		"negative":     0.5,
		"pessimistic":  0.5,
		"recession":    0.8,
		"layoffs":      0.6,
		"lawsuit":      0.5,
		"probe":        0.4,
		"underperform": 0.7,
		"warning":      0.5,
		"default":      0.8,
		"selloff":      0.8,
	}
}
