package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/logger"
)

// Worker is one unit of periodic background work
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// PeriodicWorker drives a Worker on a fixed interval
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	wg       sync.WaitGroup
	name     string
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		name:     worker.Name(),
	}
}

// Start launches the worker loop
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop waits for the loop to exit, bounded by timeout
func (pw *PeriodicWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker stopped", zap.String("worker", pw.name))
	case <-time.After(timeout):
		logger.Warn("worker stop timeout", zap.String("worker", pw.name))
	}
}

func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	logger.Info("worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
	)

	// Run immediately on start
	if err := pw.worker.Run(ctx); err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping", zap.String("worker", pw.name))
			return

		case <-ticker.C:
			if err := pw.worker.Run(ctx); err != nil {
				// Keep running; a failed iteration is not fatal
				logger.Error("worker execution failed",
					zap.String("worker", pw.name),
					zap.Error(err),
				)
			}
		}
	}
}

// Group manages multiple periodic workers with graceful shutdown
type Group struct {
	workers []*PeriodicWorker
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// NewGroup creates an empty worker group
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}
}

// Add registers a worker with its interval
func (g *Group) Add(worker Worker, interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workers = append(g.workers, NewPeriodicWorker(worker, interval))
}

// Start launches all registered workers
func (g *Group) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		w.Start(g.ctx)
	}
	logger.Info("worker group started", zap.Int("workers", len(g.workers)))
}

// Stop cancels and waits for all workers
func (g *Group) Stop(timeout time.Duration) {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		w.Stop(timeout)
	}
	logger.Info("worker group stopped")
}
