package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind identifies what shape of upstream market data is requested
type RequestKind string

const (
	KindQuote          RequestKind = "quote"
	KindCompanyProfile RequestKind = "company_profile"
	KindIncome         RequestKind = "income_statement"
	KindBalanceSheet   RequestKind = "balance_sheet"
	KindDailyTrading   RequestKind = "daily_trading"
)

// Freshness describes where a gateway response came from
type Freshness string

const (
	FreshnessFresh       Freshness = "fresh"
	FreshnessCachedFresh Freshness = "cached_fresh"
	FreshnessCachedStale Freshness = "cached_stale_due_to_limit"
	FreshnessAbsent      Freshness = "absent"
)

// StockQuote is a point-in-time price snapshot for one TWSE symbol
type StockQuote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Volume    int64           `json:"volume"`
	ChangePct float64         `json:"change_pct"`
	AsOf      time.Time       `json:"as_of"`
}

// CompanyProfile is basic issuer information
type CompanyProfile struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Industry    string `json:"industry"`
	Description string `json:"description,omitempty"`
	Chairman    string `json:"chairman,omitempty"`
	Capital     string `json:"capital,omitempty"`
}

// FinancialStatement is one reported income statement or balance sheet
type FinancialStatement struct {
	Symbol string                     `json:"symbol"`
	Year   int                        `json:"year"`
	Season int                        `json:"season"`
	Kind   RequestKind                `json:"kind"`
	Items  map[string]decimal.Decimal `json:"items"`
}

// DailyTrading is one day of OHLCV for a symbol
type DailyTrading struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"` // YYYY-MM-DD in Asia/Taipei
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// TradingDayInfo answers check_trading_day for one date
type TradingDayInfo struct {
	Date         string `json:"date"`
	IsTradingDay bool   `json:"is_trading_day"`
	IsWeekend    bool   `json:"is_weekend"`
	IsHoliday    bool   `json:"is_holiday"`
	HolidayName  string `json:"holiday_name,omitempty"`
}

// MarketStatus is the live market state for GET /market/status
type MarketStatus struct {
	IsTradingDay   bool   `json:"is_trading_day"`
	IsTradingHours bool   `json:"is_trading_hours"`
	Status         string `json:"status"` // "open", "closed", "holiday"
}

// TechnicalIndicators holds the indicator set computed by the analysis tools
type TechnicalIndicators struct {
	RSI            map[string]decimal.Decimal `json:"rsi,omitempty"`
	MACD           *MACDIndicator             `json:"macd,omitempty"`
	BollingerBands *BollingerBandsIndicator   `json:"bollinger_bands,omitempty"`
	SMA            map[string]decimal.Decimal `json:"sma,omitempty"`
	EMA            map[string]decimal.Decimal `json:"ema,omitempty"`
	Volume         *VolumeIndicator           `json:"volume,omitempty"`
}

// MACDIndicator holds MACD line, signal line and histogram
type MACDIndicator struct {
	MACD      decimal.Decimal `json:"macd"`
	Signal    decimal.Decimal `json:"signal"`
	Histogram decimal.Decimal `json:"histogram"`
}

// BollingerBandsIndicator holds the three bands
type BollingerBandsIndicator struct {
	Upper  decimal.Decimal `json:"upper"`
	Middle decimal.Decimal `json:"middle"`
	Lower  decimal.Decimal `json:"lower"`
}

// VolumeIndicator compares current volume against its average
type VolumeIndicator struct {
	Current decimal.Decimal `json:"current"`
	Average decimal.Decimal `json:"average"`
	Ratio   decimal.Decimal `json:"ratio"`
}
