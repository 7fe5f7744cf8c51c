package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/logger"
)

// BatchWriter buffers rows for one table and flushes them in batches,
// either when the buffer fills or on a timer
type BatchWriter struct {
	client   *Client
	table    string
	buffer   [][]any
	bufferMu sync.Mutex
	maxBatch int
	ticker   *time.Ticker
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewBatchWriter creates a writer bound to one table
func NewBatchWriter(client *Client, table string, maxBatch int, maxWait time.Duration) *BatchWriter {
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		client:   client,
		table:    table,
		buffer:   make([][]any, 0, maxBatch),
		maxBatch: maxBatch,
		ticker:   time.NewTicker(maxWait),
		ctx:      ctx,
		cancel:   cancel,
	}

	bw.wg.Add(1)
	go bw.autoFlush()
	return bw
}

// Add appends one row to the buffer
func (bw *BatchWriter) Add(row []any) {
	bw.bufferMu.Lock()
	bw.buffer = append(bw.buffer, row)
	shouldFlush := len(bw.buffer) >= bw.maxBatch
	bw.bufferMu.Unlock()

	if shouldFlush {
		bw.flush()
	}
}

func (bw *BatchWriter) autoFlush() {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.ticker.C:
			bw.flush()
		case <-bw.ctx.Done():
			// Final flush before exit
			bw.flush()
			return
		}
	}
}

func (bw *BatchWriter) flush() {
	bw.bufferMu.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMu.Unlock()
		return
	}
	toWrite := make([][]any, len(bw.buffer))
	copy(toWrite, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bw.client.InsertBatch(ctx, bw.table, toWrite); err != nil {
		logger.Error("failed to flush batch",
			zap.String("table", bw.table),
			zap.Int("rows", len(toWrite)),
			zap.Error(err),
		)
	}
}

// Close stops the writer and flushes remaining rows
func (bw *BatchWriter) Close() error {
	bw.ticker.Stop()
	bw.cancel()
	bw.wg.Wait()
	return nil
}
