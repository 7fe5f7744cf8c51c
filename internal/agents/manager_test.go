package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/twquant/twse-agents/internal/adapters/ai"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/pkg/models"
)

// fakeLocker records acquires and releases
type fakeLocker struct {
	mu        sync.Mutex
	acquireCh chan struct{}
	releaseCh chan struct{}
	held      bool
	lastKey   string
	lastTTL   time.Duration
	err       error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{
		acquireCh: make(chan struct{}, 1),
		releaseCh: make(chan struct{}, 1),
	}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.held = true
	l.lastKey = key
	l.lastTTL = ttl
	l.acquireCh <- struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held {
			l.held = false
			l.releaseCh <- struct{}{}
		}
	}, nil
}

func (l *fakeLocker) isHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// managerWith registers a pre-built supervisor directly; the repository is
// untouched on the session dispatch path.
func managerWith(sup *Supervisor, locker Locker) *Manager {
	m := NewManager(nil, nil, nil, events.NewBus(64), supervisorConfig(), locker)
	m.supervisors[sup.Profile().ID] = sup
	return m
}

func TestManager_LockHeldForSessionLifetime(t *testing.T) {
	sup, _ := newTestSupervisor(t, &blockingReasoner{}, newFakeSessionStore())
	locker := newFakeLocker()
	m := managerWith(sup, locker)

	if _, err := m.StartSession(context.Background(), "a1", "", 0, ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-locker.acquireCh

	if locker.lastKey != "agent:start:a1" {
		t.Errorf("lock key = %q", locker.lastKey)
	}
	if locker.lastTTL <= supervisorConfig().WallClockBudget {
		t.Errorf("ttl = %s, must exceed the wall-clock budget", locker.lastTTL)
	}

	waitForStatus(t, sup, models.StatusRunning)
	if !locker.isHeld() {
		t.Fatal("lock must stay held while the session runs")
	}

	if _, err := m.StopSession(context.Background(), "a1"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-locker.releaseCh:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not released after the session ended")
	}
}

func TestManager_LockReleasedOnCompletion(t *testing.T) {
	stream := &scriptedStream{events: []*ai.Event{finalEvent("done")}}
	sup, _ := newTestSupervisor(t, &scriptedReasoner{stream: stream}, newFakeSessionStore())
	locker := newFakeLocker()
	m := managerWith(sup, locker)

	if _, err := m.StartSession(context.Background(), "a1", "", 0, ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-locker.releaseCh:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not released after completion")
	}
	waitForStatus(t, sup, models.StatusIdle)
}

func TestManager_LockReleasedOnStartRejection(t *testing.T) {
	sup, _ := newTestSupervisor(t, &blockingReasoner{}, newFakeSessionStore())
	sup.status = models.StatusError
	locker := newFakeLocker()
	m := managerWith(sup, locker)

	if _, err := m.StartSession(context.Background(), "a1", "", 0, ""); err == nil {
		t.Fatal("start from error state must be rejected")
	}
	select {
	case <-locker.releaseCh:
	case <-time.After(time.Second):
		t.Fatal("lock not released when the supervisor rejected the start")
	}
}
