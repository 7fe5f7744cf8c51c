package events

import (
	"os"
	"testing"
	"time"

	"github.com/twquant/twse-agents/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

func recvOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Emit(SessionStarted, "a1", "s1", nil)

	for i, ch := range []<-chan Event{ch1, ch2} {
		evt := recvOne(t, ch)
		if evt.Type != SessionStarted {
			t.Errorf("subscriber %d: type = %s, want session_started", i, evt.Type)
		}
		if evt.AgentID != "a1" || evt.SessionID != "s1" {
			t.Errorf("subscriber %d: envelope = %+v", i, evt)
		}
		if evt.Timestamp.IsZero() {
			t.Errorf("subscriber %d: timestamp not set", i)
		}
	}
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Fill the buffer, then overflow it.
	bus.Emit(ToolInvoked, "a1", "s1", nil)
	bus.Emit(ToolInvoked, "a1", "s1", nil)
	bus.Emit(ToolInvoked, "a1", "s1", nil)

	if bus.SubscriberCount() != 0 {
		t.Errorf("slow subscriber not dropped, count = %d", bus.SubscriberCount())
	}

	// The two buffered events drain, then the channel reports closed.
	received := 0
	for {
		_, ok := <-ch
		if !ok {
			break
		}
		received++
	}
	if received != 2 {
		t.Errorf("drained %d events, want 2", received)
	}
}

func TestBus_CancelIsIdempotent(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	_, cancel := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", bus.SubscriberCount())
	}
	cancel()
	cancel()
	if bus.SubscriberCount() != 0 {
		t.Errorf("count = %d, want 0", bus.SubscriberCount())
	}

	// Publishing after cancel must not panic or deliver.
	bus.Emit(AgentCreated, "a1", "", nil)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel must be closed")
	}

	// Publish after close is a no-op.
	bus.Emit(AgentCreated, "a1", "", nil)

	// Subscribe after close returns a closed channel.
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()
	if _, ok := <-ch2; ok {
		t.Error("post-close subscription must be closed immediately")
	}
}
