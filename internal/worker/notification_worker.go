package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/service"
)

// StartNotificationWorker registers the fan-out handlers on dispatcher.
func StartNotificationWorker(fanout *service.NotificationFanout, dispatcher events.Dispatcher) {
	if fanout == nil || dispatcher == nil {
		return
	}
	fanout.RegisterHandlers(dispatcher)
}

// PendingProcessor drains the event outbox.
type PendingProcessor interface {
	ProcessPending(ctx context.Context, limit int) (int, error)
}

// OutboxRelay periodically emits events whose live publish was lost, for
// example because the process stopped between commit and dispatch.
type OutboxRelay struct {
	processor PendingProcessor
	interval  time.Duration
	batch     int
	logger    *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewOutboxRelay returns a relay; a non-positive interval disables it.
func NewOutboxRelay(processor PendingProcessor, interval time.Duration, batch int, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{processor: processor, interval: interval, batch: batch, logger: logger}
}

// Start runs one sweep immediately, then one per interval until Stop or ctx ends.
func (r *OutboxRelay) Start(ctx context.Context) {
	if r.interval <= 0 || r.processor == nil {
		r.logger.Info("outbox relay disabled")
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			r.Sweep(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Sweep processes one batch and reports how many notifications it produced.
func (r *OutboxRelay) Sweep(ctx context.Context) int {
	n, err := r.processor.ProcessPending(ctx, r.batch)
	if err != nil && ctx.Err() == nil {
		r.logger.Warn("outbox sweep failed", zap.Int("emitted", n), zap.Error(err))
		return n
	}
	if n > 0 {
		r.logger.Info("outbox sweep emitted notifications", zap.Int("emitted", n))
	}
	return n
}

// Stop cancels the loop and waits for the current sweep.
func (r *OutboxRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
