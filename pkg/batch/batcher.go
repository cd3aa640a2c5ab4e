package batch

import (
	"context"
	"sync"
	"time"
)

// Flusher receives the coalesced counter deltas accumulated since the last
// flush. It is never called with an empty map.
type Flusher interface {
	FlushCounters(ctx context.Context, deltas map[string]int64) error
}

// Batcher coalesces counter increments and hands them to a Flusher either
// every interval or as soon as batchSize increments are pending.
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	flusher       Flusher
	onError       func(error)

	mu      sync.Mutex
	pending map[string]int64
	count   int

	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// NewBatcher creates a batcher and starts its flush loop. onError may be nil.
func NewBatcher(batchSize int, batchInterval time.Duration, flusher Flusher, onError func(error)) *Batcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	b := &Batcher{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		flusher:       flusher,
		onError:       onError,
		pending:       make(map[string]int64),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	go b.run()

	return b
}

// Add records delta against key.
func (b *Batcher) Add(key string, delta int64) {
	b.mu.Lock()
	b.pending[key] += delta
	b.count++
	shouldFlush := b.count >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}
}

// Flush immediately hands all pending deltas to the flusher.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	deltas := b.pending
	b.pending = make(map[string]int64, len(deltas))
	b.count = 0
	b.mu.Unlock()

	return b.flusher.FlushCounters(ctx, deltas)
}

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushAndReport()
		case <-b.flushChan:
			b.flushAndReport()
		case <-b.stopChan:
			b.flushAndReport()
			return
		}
	}
}

func (b *Batcher) flushAndReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Flush(ctx); err != nil && b.onError != nil {
		b.onError(err)
	}
}

// Stop performs a final flush and waits for the loop to exit.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
}

// PendingCount returns the number of increments not yet flushed.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
