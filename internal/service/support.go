package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/notify"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/repository"
)

// Dependencies bundles what the support core needs.
type Dependencies struct {
	Store              repository.Store
	Dispatcher         events.Dispatcher
	Delivery           notify.Deliverer
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	AllowReplyOnClosed bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Support wires the ticket components around one store and one set of
// per-ticket locks.
type Support struct {
	Access        *AccessFilter
	Tickets       *TicketStore
	Replies       *ReplyLog
	Fanout        *NotificationFanout
	Notifications *NotificationReconciler
}

// NewSupport constructs the components. Call Fanout.RegisterHandlers on
// the dispatcher to start emitting notifications.
func NewSupport(deps Dependencies) *Support {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	locks := newTicketLocks()
	access := NewAccessFilter(deps.Store.Tickets(), deps.AllowReplyOnClosed)

	tickets := &TicketStore{
		store:      deps.Store,
		access:     access,
		locks:      locks,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("tickets"),
		now:        now,
	}
	return &Support{
		Access:  access,
		Tickets: tickets,
		Replies: &ReplyLog{
			tickets: tickets,
			store:   deps.Store,
			access:  access,
			locks:   locks,
			logger:  logger.Named("replies"),
		},
		Fanout: &NotificationFanout{
			store:    deps.Store,
			delivery: deps.Delivery,
			metrics:  deps.Metrics,
			logger:   logger.Named("fanout"),
			now:      now,
		},
		Notifications: &NotificationReconciler{
			store: deps.Store,
			now:   now,
		},
	}
}

// OpenTicket is the read path for a viewer opening a ticket: it returns
// the ticket and its thread and acknowledges the viewer's notifications
// for it. The ticket is loaded first; its updatedAt bounds what counts as
// seen, since every event bumps it.
func (s *Support) OpenTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, []domain.Reply, error) {
	ticket, err := s.Tickets.GetVisible(ctx, ticketID, actor)
	if err != nil {
		return nil, nil, err
	}
	replies, err := s.Replies.ListReplies(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.Notifications.MarkAllReadForTicket(ctx, ticketID, actor.ID, ticket.UpdatedAt); err != nil {
		return nil, nil, err
	}
	return ticket, replies, nil
}

// MarkTicketRead acknowledges actor's notifications on a ticket actor can see.
func (s *Support) MarkTicketRead(ctx context.Context, actor domain.Actor, ticketID string) (int64, error) {
	ticket, err := s.Tickets.GetVisible(ctx, ticketID, actor)
	if err != nil {
		return 0, err
	}
	return s.Notifications.MarkAllReadForTicket(ctx, ticketID, actor.ID, ticket.UpdatedAt)
}
