package ai

import (
	"context"
)

// ToolDescriptor advertises one callable tool to the reasoner
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any // JSON-schema object for the parameters
}

// Request starts one reasoning session
type Request struct {
	Model        string
	Instructions string
	UserMessage  string
	Tools        []ToolDescriptor
	Temperature  float32
}

// EventKind discriminates stream events
type EventKind string

const (
	EventToolCall EventKind = "tool_call"
	EventFinal    EventKind = "final"
)

// ToolCall is one tool invocation requested by the reasoner
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]any
}

// Event is one step of the reasoning stream
type Event struct {
	Kind  EventKind
	Call  *ToolCall // set when Kind is tool_call
	Final string    // set when Kind is final
}

// Stream is one live reasoning session. The caller must Reply to every
// tool_call event before the next Recv, and Close the stream when done.
type Stream interface {
	Recv(ctx context.Context) (*Event, error)
	Reply(ctx context.Context, callID string, result any) error
	Close() error
}

// Reasoner is the opaque LLM backend driving agent sessions
type Reasoner interface {
	StartSession(ctx context.Context, req Request) (Stream, error)
}
