package models

// SideEffect classifies what a tool touches; mode policy gates on it
type SideEffect string

const (
	EffectPure          SideEffect = "pure"
	EffectReadMarket    SideEffect = "read-market"
	EffectReadPortfolio SideEffect = "read-portfolio"
	EffectWriteTrade    SideEffect = "write-simulated-trade"
	EffectWriteStrategy SideEffect = "write-strategy-change"
)

// ToolResult is the uniform tool outcome. Tools never propagate errors
// across the boundary; failures are carried in Error with OK false.
type ToolResult struct {
	OK    bool             `json:"ok"`
	Data  any              `json:"data,omitempty"`
	Error *ErrorDescriptor `json:"error,omitempty"`
}
