package models

import (
	"encoding/json"
	"time"
)

// SessionStatus is the terminal (or in-flight) state of one reasoning session
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

// ErrorDescriptor is the persisted shape of a session error
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Session records one bounded execution of the reasoning loop
type Session struct {
	ID          string           `json:"id" db:"id"`
	AgentID     string           `json:"agent_id" db:"agent_id"`
	Mode        AgentMode        `json:"mode" db:"mode"`
	Status      SessionStatus    `json:"status" db:"status"`
	StartedAt   time.Time        `json:"started_at" db:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty" db:"ended_at"`
	Turns       int              `json:"turns" db:"turns"`
	Duration    time.Duration    `json:"duration" db:"duration"`
	FinalOutput string           `json:"final_output" db:"final_output"`
	Error       *ErrorDescriptor `json:"error,omitempty" db:"error"` // JSONB
	Invocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// ToolInvocation is one tool call made during a session, persisted in the
// order the reasoner emitted it
type ToolInvocation struct {
	ID        int64           `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Seq       int             `json:"seq" db:"seq"`
	Tool      string          `json:"tool" db:"tool"`
	Input     json.RawMessage `json:"input" db:"input"`   // JSONB
	Output    json.RawMessage `json:"output" db:"output"` // JSONB
	Latency   time.Duration   `json:"latency" db:"latency"`
	Success   bool            `json:"success" db:"success"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SessionDetail is the API view of a session with aggregate trade stats
type SessionDetail struct {
	Session
	TradeCount int `json:"trade_count"`
	BuyCount   int `json:"buy_count"`
	SellCount  int `json:"sell_count"`
}
