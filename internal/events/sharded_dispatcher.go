package events

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned by Publish after Close.
var ErrDispatcherClosed = errors.New("events: dispatcher closed")

// QueueGauge observes how many events wait in the shard queues.
type QueueGauge interface {
	AddQueueDepth(delta float64)
}

// ShardedDispatcher runs handlers asynchronously on a fixed set of worker
// goroutines. Events for one ticket always land on the same shard, so
// handlers observe them in publish order.
type ShardedDispatcher struct {
	handlers *inMemoryDispatcher
	shards   []chan Event
	logger   *zap.Logger
	gauge    QueueGauge

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewShardedDispatcher creates a dispatcher with the given shard count and
// per-shard queue capacity. Call Start before publishing.
func NewShardedDispatcher(shards, queueSize int, logger *zap.Logger, gauge QueueGauge) *ShardedDispatcher {
	if shards <= 0 {
		shards = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &ShardedDispatcher{
		handlers: NewInMemoryDispatcher(logger).(*inMemoryDispatcher),
		shards:   make([]chan Event, shards),
		logger:   logger,
		gauge:    gauge,
	}
	for i := range d.shards {
		d.shards[i] = make(chan Event, queueSize)
	}
	return d
}

// Subscribe registers a handler for the given event type.
func (d *ShardedDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.Subscribe(eventType, handler)
}

// Start launches one worker per shard. Handlers run with ctx, not with the
// publisher's context.
func (d *ShardedDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i, ch := range d.shards {
		d.wg.Add(1)
		go d.run(ctx, i, ch)
	}
}

func (d *ShardedDispatcher) run(ctx context.Context, shard int, ch <-chan Event) {
	defer d.wg.Done()
	for event := range ch {
		if d.gauge != nil {
			d.gauge.AddQueueDepth(-1)
		}
		if err := d.handlers.Publish(ctx, event); err != nil {
			d.logger.Debug("shard handler error", zap.Int("shard", shard), zap.Error(err))
		}
	}
}

// Publish enqueues the event on its ticket's shard. It blocks while the
// shard is full, until ctx ends.
func (d *ShardedDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.shards[d.shardFor(event.TicketID)] <- event:
		if d.gauge != nil {
			d.gauge.AddQueueDepth(1)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (d *ShardedDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *ShardedDispatcher) shardFor(ticketID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	return int(h.Sum32() % uint32(len(d.shards)))
}
