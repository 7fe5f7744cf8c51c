package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusChangedPayload reports a supervisor state transition
type StatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// SessionPayload carries terminal session details
type SessionPayload struct {
	Mode          string        `json:"mode"`
	Status        string        `json:"status"`
	TurnsConsumed int           `json:"turns_consumed"`
	Duration      time.Duration `json:"duration_ms"`
	FinalOutput   string        `json:"final_output,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// ToolInvokedPayload reports one tool call inside a session
type ToolInvokedPayload struct {
	Tool    string        `json:"tool"`
	Seq     int           `json:"seq"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency_ms"`
}

// TransactionPayload reports one simulated fill
type TransactionPayload struct {
	TransactionID string          `json:"transaction_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Notional      decimal.Decimal `json:"notional"`
}

// StrategyChangePayload reports an appended strategy-change record
type StrategyChangePayload struct {
	ChangeID      string `json:"change_id"`
	TriggerKind   string `json:"trigger_kind"`
	ChangeSummary string `json:"change_summary"`
}

// PortfolioSnapshotPayload reports a periodic valuation
type PortfolioSnapshotPayload struct {
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"total_value"`
	ReturnPct  float64         `json:"return_pct"`
	Positions  int             `json:"positions"`
}

// ErrorPayload reports an out-of-session failure
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
