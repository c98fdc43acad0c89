package batch

import (
	"context"
	"sync"
	"time"
)

// Item is one pending write.
type Item[K comparable, V any] struct {
	Key   K
	Value V
}

// Processor writes one batch.
type Processor[K comparable, V any] func(ctx context.Context, items []Item[K, V]) error

// Batcher collects writes and hands them to a Processor in batches. A write
// for a key that is already pending replaces the pending value, so only the
// latest state per key is written. Batches keep first-seen key order.
type Batcher[K comparable, V any] struct {
	batchSize     int
	batchInterval time.Duration
	processor     Processor[K, V]
	onError       func(error)

	mu      sync.Mutex
	pending map[K]int
	items   []Item[K, V]

	// flushMu keeps batches in order: one is written before the next is taken.
	flushMu sync.Mutex

	flushChan chan struct{}
	stopChan  chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
}

func NewBatcher[K comparable, V any](batchSize int, batchInterval time.Duration, processor Processor[K, V], onError func(error)) *Batcher[K, V] {
	if batchSize <= 0 {
		batchSize = 1
	}
	b := &Batcher[K, V]{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		processor:     processor,
		onError:       onError,
		pending:       make(map[K]int),
		items:         make([]Item[K, V], 0, batchSize),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()

	return b
}

// Add queues value for key.
func (b *Batcher[K, V]) Add(key K, value V) {
	b.mu.Lock()
	if i, ok := b.pending[key]; ok {
		b.items[i].Value = value
	} else {
		b.pending[key] = len(b.items)
		b.items = append(b.items, Item[K, V]{Key: key, Value: value})
	}
	shouldFlush := len(b.items) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}
}

// Flush immediately processes all pending writes.
func (b *Batcher[K, V]) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return nil
	}
	items := b.items
	b.items = make([]Item[K, V], 0, b.batchSize)
	b.pending = make(map[K]int)
	b.mu.Unlock()

	return b.processor(ctx, items)
}

func (b *Batcher[K, V]) run() {
	defer close(b.stopped)

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

func (b *Batcher[K, V]) flushAndReport() {
	if err := b.Flush(context.Background()); err != nil && b.onError != nil {
		b.onError(err)
	}
}

// Stop flushes what is pending and waits for the final write.
func (b *Batcher[K, V]) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.stopped
}

// PendingCount returns the number of keys waiting to be written.
func (b *Batcher[K, V]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
