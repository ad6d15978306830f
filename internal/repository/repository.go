package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/support-core/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("repository: transient failure")
)

// TicketFilter narrows ticket listings. Nil fields are unconstrained.
type TicketFilter struct {
	OwnerID        *string
	OrganizationID *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	Categories     []domain.TicketCategory
	Limit          int
	Offset         int
}

// NotificationFilter narrows inbox listings.
type NotificationFilter struct {
	RecipientID string
	TicketID    *string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate reads a ticket and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// ReplyRepository manages the append-only reply log.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.Reply) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Reply, error)
}

// NotificationRepository persists notifications and their read state.
type NotificationRepository interface {
	// Upsert inserts n, or folds it into the existing unread notification
	// with the same recipient, ticket and kind. On fold n.ID is replaced
	// with the surviving row's id and folded is true.
	Upsert(ctx context.Context, n *domain.Notification) (folded bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	// MarkAllReadForTicket marks the unread notifications created at or
	// before seenUpTo. Rows created or folded later stay unread.
	MarkAllReadForTicket(ctx context.Context, ticketID, recipientID string, seenUpTo, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	HasUnreadForTicket(ctx context.Context, ticketID, recipientID string) (bool, error)
	List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
}

// EventRepository is the transactional outbox of ticket events.
type EventRepository interface {
	Append(ctx context.Context, event *domain.TicketEvent) error
	// LockTicket serializes fan-out work on one ticket for the rest of the
	// transaction without touching the ticket row lock.
	LockTicket(ctx context.Context, ticketID string) error
	ListPending(ctx context.Context, ticketID string) ([]domain.TicketEvent, error)
	PendingTickets(ctx context.Context, limit int) ([]string, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
}

// ActorDirectory resolves actors owned by the identity collaborator.
type ActorDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Actor, error)
	// ListResponders returns ORG_ADMINs of orgID, or SUPER_ADMINs when orgID is nil.
	ListResponders(ctx context.Context, orgID *string) ([]domain.Actor, error)
	Upsert(ctx context.Context, actor *domain.Actor) error
}

// Store groups the repositories behind one transactional boundary.
type Store interface {
	Tickets() TicketRepository
	Replies() ReplyRepository
	Notifications() NotificationRepository
	Events() EventRepository
	Actors() ActorDirectory
	// WithinTx runs fn against a transaction-bound Store. The transaction
	// commits when fn returns nil and rolls back otherwise. Nested calls
	// join the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// IsTransient reports whether err is worth a single retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return true
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
