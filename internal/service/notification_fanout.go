package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/ids"
	"github.com/spec-kit/support-core/internal/notify"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/repository"
)

// NotificationFanout turns committed outbox events into notifications.
type NotificationFanout struct {
	store    repository.Store
	delivery notify.Deliverer
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// RegisterHandlers subscribes the fan-out to every ticket event type.
func (f *NotificationFanout) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		dispatcher.Subscribe(eventType, f.Handle)
	}
}

// Handle drains the outbox of the event's ticket. The envelope only
// identifies the ticket; pending rows are reloaded from the store.
func (f *NotificationFanout) Handle(ctx context.Context, event events.Event) error {
	_, err := f.ProcessTicket(ctx, event.TicketID)
	return err
}

// Emit resolves recipients for event and stores their notifications in a
// transaction of its own. It does not touch the outbox.
func (f *NotificationFanout) Emit(ctx context.Context, event domain.TicketEvent) ([]domain.Notification, error) {
	var out []domain.Notification
	err := withRetry(ctx, func() error {
		return f.store.WithinTx(ctx, func(tx repository.Store) error {
			var err error
			out, err = f.emit(ctx, tx, event)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	f.deliver(ctx, out)
	return out, nil
}

// ProcessTicket consumes the ticket's pending events in sequence order.
// Each event commits together with its notifications, under a per-ticket
// lock, so concurrent drains never emit an event twice.
func (f *NotificationFanout) ProcessTicket(ctx context.Context, ticketID string) (int, error) {
	started := time.Now()
	defer func() { f.metrics.ObserveFanout(time.Since(started)) }()

	processed := 0
	for {
		var (
			done    bool
			emitted []domain.Notification
		)
		err := withRetry(ctx, func() error {
			done, emitted = false, nil
			return f.store.WithinTx(ctx, func(tx repository.Store) error {
				if err := tx.Events().LockTicket(ctx, ticketID); err != nil {
					return err
				}
				pending, err := tx.Events().ListPending(ctx, ticketID)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					done = true
					return nil
				}
				event := pending[0]
				emitted, err = f.emit(ctx, tx, event)
				if err != nil {
					return err
				}
				return tx.Events().MarkProcessed(ctx, event.ID, f.now())
			})
		})
		if err != nil {
			f.logger.Error("fan-out failed",
				zap.String("ticket_id", ticketID),
				zap.Int("processed", processed),
				zap.Error(err))
			return processed, err
		}
		if done {
			return processed, nil
		}
		processed++
		f.deliver(ctx, emitted)
	}
}

// ProcessPending drains up to limit tickets that still have pending events.
func (f *NotificationFanout) ProcessPending(ctx context.Context, limit int) (int, error) {
	var ticketIDs []string
	err := withRetry(ctx, func() error {
		var err error
		ticketIDs, err = f.store.Events().PendingTickets(ctx, limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, ticketID := range ticketIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := f.ProcessTicket(ctx, ticketID)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (f *NotificationFanout) emit(ctx context.Context, tx repository.Store, event domain.TicketEvent) ([]domain.Notification, error) {
	ticket, err := tx.Tickets().GetByID(ctx, event.TicketID)
	if err != nil {
		return nil, ticketNotFound(event.TicketID, err)
	}
	recipients, err := f.recipients(ctx, tx, ticket, event)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		n := domain.Notification{
			ID:          ids.NewSortable(event.CreatedAt),
			RecipientID: recipientID,
			Kind:        event.Kind,
			TicketID:    ticket.ID,
			EventID:     event.ID,
			Metadata:    notificationMetadata(ticket, event),
			CreatedAt:   event.CreatedAt,
		}
		folded, err := tx.Notifications().Upsert(ctx, &n)
		if err != nil {
			return nil, err
		}
		f.metrics.RecordNotification(string(event.Kind), folded)
		out = append(out, n)
	}
	return out, nil
}

// recipients never includes the actor that triggered the event.
func (f *NotificationFanout) recipients(ctx context.Context, tx repository.Store, ticket *domain.Ticket, event domain.TicketEvent) ([]string, error) {
	var candidates []string
	switch {
	case event.Kind == domain.EventNewTicket,
		event.Kind == domain.EventNewReply && event.ActorID == ticket.OwnerID:
		responders, err := tx.Actors().ListResponders(ctx, ticket.OrganizationID)
		if err != nil {
			return nil, err
		}
		for _, r := range responders {
			candidates = append(candidates, r.ID)
		}
	default:
		candidates = []string{ticket.OwnerID}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" || id == event.ActorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func notificationMetadata(ticket *domain.Ticket, event domain.TicketEvent) map[string]any {
	meta := map[string]any{
		domain.MetaTicketID:    ticket.ID,
		domain.MetaSubject:     ticket.Subject,
		domain.MetaTriggeredBy: event.ActorID,
	}
	switch event.Kind {
	case domain.EventStatusChanged, domain.EventPriorityChanged:
		meta[domain.MetaOldValue] = event.OldValue
		meta[domain.MetaNewValue] = event.NewValue
	case domain.EventNewReply:
		meta[domain.MetaReplyID] = event.ReplyID
	}
	return meta
}

func (f *NotificationFanout) deliver(ctx context.Context, notifications []domain.Notification) {
	if f.delivery == nil {
		return
	}
	for _, n := range notifications {
		// Failures are logged and counted by the channels; the row is stored.
		_ = f.delivery.Deliver(ctx, n)
	}
}
