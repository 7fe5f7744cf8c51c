package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AgentMode gates which tools a session may see
type AgentMode string

const (
	ModeObservation    AgentMode = "OBSERVATION"
	ModeTrading        AgentMode = "TRADING"
	ModeRebalancing    AgentMode = "REBALANCING"
	ModeStrategyReview AgentMode = "STRATEGY_REVIEW"
)

// ValidMode reports whether m is one of the canonical modes
func ValidMode(m AgentMode) bool {
	switch m {
	case ModeObservation, ModeTrading, ModeRebalancing, ModeStrategyReview:
		return true
	}
	return false
}

// AgentStatus is the supervisor state machine position
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusRunning  AgentStatus = "running"
	StatusStopping AgentStatus = "stopping"
	StatusError    AgentStatus = "error"
)

// InvestmentPreferences constrains what an agent may trade
type InvestmentPreferences struct {
	AllowedSectors    []string `json:"allowed_sectors,omitempty"`
	ExcludedSectors   []string `json:"excluded_sectors,omitempty"`
	MaxPositionWeight float64  `json:"max_position_weight"` // 0..1 of portfolio value
	RebalanceCadence  string   `json:"rebalance_cadence,omitempty"`
}

// AgentProfile is the immutable-after-create identity and policy of one agent.
// Only Description, CustomInstructions, Preferences, RiskTolerance and
// EnabledTools may change after creation.
type AgentProfile struct {
	ID                 string                `json:"id" db:"id"`
	Name               string                `json:"name" db:"name"`
	Description        string                `json:"description" db:"description"`
	Model              string                `json:"ai_model" db:"ai_model"`
	InitialFunds       decimal.Decimal       `json:"initial_funds" db:"initial_funds"`
	MaxTurns           int                   `json:"max_turns" db:"max_turns"`
	RiskTolerance      float64               `json:"risk_tolerance" db:"risk_tolerance"`
	EnabledTools       []string              `json:"enabled_tools" db:"enabled_tools"` // JSONB
	Preferences        InvestmentPreferences `json:"preferences" db:"preferences"`     // JSONB
	CustomInstructions string                `json:"custom_instructions" db:"custom_instructions"`
	AdjustmentCriteria string                `json:"adjustment_criteria" db:"adjustment_criteria"`
	CreatedAt          time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at" db:"updated_at"`
}

// Validate checks profile invariants at the creation boundary
func (p *AgentProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Model == "" {
		return fmt.Errorf("ai_model is required")
	}
	if !p.InitialFunds.IsPositive() {
		return fmt.Errorf("initial_funds must be positive")
	}
	if p.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		return fmt.Errorf("risk_tolerance must be in [0,1]")
	}
	if w := p.Preferences.MaxPositionWeight; w < 0 || w > 1 {
		return fmt.Errorf("max_position_weight must be in [0,1]")
	}
	return nil
}

// RiskBand buckets risk tolerance into a coarse label used in instructions
func (p *AgentProfile) RiskBand() string {
	switch {
	case p.RiskTolerance < 0.35:
		return "low"
	case p.RiskTolerance < 0.7:
		return "medium"
	default:
		return "high"
	}
}

// ProfileUpdate carries the updatable subset of AgentProfile fields.
// Nil pointers mean "leave unchanged".
type ProfileUpdate struct {
	Description        *string                `json:"description,omitempty"`
	CustomInstructions *string                `json:"custom_instructions,omitempty"`
	AdjustmentCriteria *string                `json:"adjustment_criteria,omitempty"`
	Preferences        *InvestmentPreferences `json:"preferences,omitempty"`
	RiskTolerance      *float64               `json:"risk_tolerance,omitempty"`
	EnabledTools       []string               `json:"enabled_tools,omitempty"`
}

// AffectsInstructions reports whether the update touches fields that feed
// instruction composition and therefore requires the agent to be idle
func (u *ProfileUpdate) AffectsInstructions() bool {
	return u.CustomInstructions != nil || u.AdjustmentCriteria != nil ||
		u.Preferences != nil || u.RiskTolerance != nil || u.EnabledTools != nil
}

// AgentRuntimeState is the mutable per-agent state owned by the supervisor
type AgentRuntimeState struct {
	AgentID        string          `json:"agent_id" db:"agent_id"`
	Mode           AgentMode       `json:"mode" db:"mode"`
	Status         AgentStatus     `json:"status" db:"status"`
	Cash           decimal.Decimal `json:"cash" db:"cash"`
	LastActivityAt time.Time       `json:"last_activity_at" db:"last_activity_at"`
}

// TriggerKind classifies what caused a strategy change
type TriggerKind string

const (
	TriggerManual          TriggerKind = "manual"
	TriggerAutoPerformance TriggerKind = "auto_performance"
	TriggerAutoMarket      TriggerKind = "auto_market"
	TriggerAutoTime        TriggerKind = "auto_time"
	TriggerScheduled       TriggerKind = "scheduled"
)

// ValidTriggerKind reports whether k is a known trigger kind
func ValidTriggerKind(k TriggerKind) bool {
	switch k {
	case TriggerManual, TriggerAutoPerformance, TriggerAutoMarket, TriggerAutoTime, TriggerScheduled:
		return true
	}
	return false
}

// PerformanceSnapshot captures portfolio metrics at strategy-change time
type PerformanceSnapshot struct {
	TotalValue  decimal.Decimal `json:"total_value"`
	Cash        decimal.Decimal `json:"cash"`
	ReturnPct   float64         `json:"return_pct"`
	TotalTrades int             `json:"total_trades"`
	WinRate     float64         `json:"win_rate"`
}

// StrategyChange is an append-only audit record extending an agent's
// composed instructions. Once inserted it is immutable.
type StrategyChange struct {
	ID            int64               `json:"id" db:"id"`
	AgentID       string              `json:"agent_id" db:"agent_id"`
	Trigger       TriggerKind         `json:"trigger" db:"trigger_kind"`
	TriggerReason string              `json:"trigger_reason" db:"trigger_reason"`
	Addition      string              `json:"addition" db:"addition"`
	Summary       string              `json:"summary" db:"summary"`
	Explanation   string              `json:"explanation" db:"explanation"`
	Performance   PerformanceSnapshot `json:"performance" db:"performance"` // JSONB
	Applied       bool                `json:"applied" db:"applied"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

// AgentView is the API snapshot of one agent: profile, runtime state and
// last-known portfolio summary
type AgentView struct {
	Profile   AgentProfile      `json:"profile"`
	State     AgentRuntimeState `json:"state"`
	Portfolio *PortfolioSummary `json:"portfolio,omitempty"`
}
