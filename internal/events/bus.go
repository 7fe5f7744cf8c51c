package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/logger"
)

// Type identifies one event kind on the bus
type Type string

const (
	AgentCreated           Type = "agent_created"
	AgentDeleted           Type = "agent_deleted"
	AgentStatusChanged     Type = "agent_status_changed"
	SessionStarted         Type = "session_started"
	SessionCompleted       Type = "session_completed"
	SessionFailed          Type = "session_failed"
	SessionStopped         Type = "session_stopped"
	ToolInvoked            Type = "tool_invoked"
	TransactionRecorded    Type = "transaction_recorded"
	StrategyChangeRecorded Type = "strategy_change_recorded"
	PortfolioSnapshotTaken Type = "portfolio_snapshot"
	ErrorOccurred          Type = "error"
)

// Event is the envelope every subscriber receives
type Event struct {
	Type      Type      `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type subscriber struct {
	id int
	ch chan Event
}

// Bus is an in-process fan-out of events. Delivery is at-most-once and
// best-effort: a subscriber whose buffer is full is disconnected rather
// than blocking publishers. The repository, not the bus, is the system
// of record.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*subscriber
	bufSize int
	closed  bool
}

// NewBus creates a bus with the given per-subscriber buffer size
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:    make(map[int]*subscriber),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber. The returned cancel function is
// idempotent and must be called when the subscriber goes away.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Event, b.bufSize)}
	b.subs[sub.id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[sub.id]; ok {
				delete(b.subs, sub.id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber. Never blocks: slow
// subscribers are dropped.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			delete(b.subs, id)
			close(sub.ch)
			logger.Warn("dropping slow event subscriber",
				zap.Int("subscriber_id", id),
				zap.String("event_type", string(evt.Type)),
			)
		}
	}
}

// Emit is shorthand for Publish with the envelope fields filled in
func (b *Bus) Emit(t Type, agentID, sessionID string, payload any) {
	b.Publish(Event{
		Type:      t,
		AgentID:   agentID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// SubscriberCount returns the current number of subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disconnects all subscribers. Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
