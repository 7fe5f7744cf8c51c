package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a simulated fill
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeStatus is the outcome of a simulated order
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeExecuted TradeStatus = "executed"
	TradeFailed   TradeStatus = "failed"
)

// Transaction is one simulated fill with Taiwan-market fee and tax applied
type Transaction struct {
	ID         int64           `json:"id" db:"id"`
	AgentID    string          `json:"agent_id" db:"agent_id"`
	SessionID  string          `json:"session_id" db:"session_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       TradeSide       `json:"side" db:"side"`
	Quantity   int64           `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Notional   decimal.Decimal `json:"notional" db:"notional"`
	Fee        decimal.Decimal `json:"fee" db:"fee"`
	Tax        decimal.Decimal `json:"tax" db:"tax"`
	Status     TradeStatus     `json:"status" db:"status"`
	Reason     string          `json:"reason" db:"reason"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// Holding is one agent's net position in one symbol, materialized from
// executed Transactions for fast reads
type Holding struct {
	AgentID   string          `json:"agent_id" db:"agent_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost" db:"avg_cost"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Position is one holding valued at a current price
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// PortfolioSummary is the valued snapshot returned by get_portfolio and the
// portfolio endpoint
type PortfolioSummary struct {
	AgentID    string          `json:"agent_id"`
	Cash       decimal.Decimal `json:"cash"`
	Positions  []Position      `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	ReturnPct  float64         `json:"return_pct"`
	AsOf       time.Time       `json:"as_of"`
}

// FillResult is the tool-facing record of one simulated fill
type FillResult struct {
	TransactionID int64           `json:"transaction_id"`
	Symbol        string          `json:"symbol"`
	Side          TradeSide       `json:"side"`
	Quantity      int64           `json:"quantity"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Notional      decimal.Decimal `json:"notional"`
	Fee           decimal.Decimal `json:"fee"`
	Tax           decimal.Decimal `json:"tax"`
	CashAfter     decimal.Decimal `json:"cash_after"`
}
