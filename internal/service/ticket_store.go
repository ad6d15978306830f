package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/ids"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

const maxSubjectLength = 200

// TicketStore is the only writer of ticket status and priority.
type TicketStore struct {
	store      repository.Store
	access     *AccessFilter
	locks      *ticketLocks
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
}

// CreateTicket opens a ticket owned by actor in actor's organization.
func (s *TicketStore) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	switch {
	case subject == "":
		return nil, apperrors.NewValidationError("subject", "subject is required")
	case len(subject) > maxSubjectLength:
		return nil, apperrors.NewValidationError("subject", "subject is too long")
	case description == "":
		return nil, apperrors.NewValidationError("description", "description is required")
	case !input.Category.Valid():
		return nil, apperrors.NewValidationError("category", "unknown category")
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("priority", "unknown priority")
	}

	var (
		ticket    *domain.Ticket
		committed []domain.TicketEvent
	)
	err := withRetry(ctx, func() error {
		committed = nil
		now := s.now()
		candidate := &domain.Ticket{
			ID:             ids.NewUUID(),
			Subject:        subject,
			Description:    description,
			Category:       input.Category,
			Status:         domain.TicketStatusOpen,
			Priority:       priority,
			OwnerID:        actor.ID,
			OrganizationID: copyString(actor.OrganizationID),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Tickets().Create(ctx, candidate); err != nil {
				return err
			}
			event := newTicketEvent(candidate.ID, domain.EventNewTicket, actor, now)
			if err := tx.Events().Append(ctx, &event); err != nil {
				return err
			}
			ticket = candidate
			committed = append(committed, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("owner_id", ticket.OwnerID),
		zap.String("category", string(ticket.Category)))
	s.publish(ctx, committed)
	return ticket, nil
}

// TicketUpdate is an administrative override. Nil fields are left alone.
type TicketUpdate struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
}

// UpdateStatus applies an administrative status override. Setting the
// current status is a no-op and raises no event.
func (s *TicketStore) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor) (*domain.Ticket, error) {
	return s.Update(ctx, ticketID, TicketUpdate{Status: &newStatus}, actor)
}

// UpdatePriority changes priority under the same rules as UpdateStatus.
func (s *TicketStore) UpdatePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority, actor domain.Actor) (*domain.Ticket, error) {
	return s.Update(ctx, ticketID, TicketUpdate{Priority: &newPriority}, actor)
}

// Update applies status and priority overrides in one transaction. Both
// values are validated before anything is written, and each real change
// appends its own event.
func (s *TicketStore) Update(ctx context.Context, ticketID string, update TicketUpdate, actor domain.Actor) (*domain.Ticket, error) {
	if update.Status == nil && update.Priority == nil {
		return nil, apperrors.NewValidationError("status", "status or priority required")
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, apperrors.NewValidationError("status", "unknown status")
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return nil, apperrors.NewValidationError("priority", "unknown priority")
	}

	return s.mutate(ctx, ticketID, actor, func(ticket *domain.Ticket) []fieldChange {
		var changes []fieldChange
		if update.Status != nil && ticket.Status != *update.Status {
			changes = append(changes, fieldChange{
				kind:     domain.EventStatusChanged,
				oldValue: string(ticket.Status),
				newValue: string(*update.Status),
			})
			ticket.Status = *update.Status
		}
		if update.Priority != nil && ticket.Priority != *update.Priority {
			changes = append(changes, fieldChange{
				kind:     domain.EventPriorityChanged,
				oldValue: string(ticket.Priority),
				newValue: string(*update.Priority),
			})
			ticket.Priority = *update.Priority
		}
		return changes
	})
}

type fieldChange struct {
	kind     domain.EventKind
	oldValue string
	newValue string
}

func (s *TicketStore) mutate(ctx context.Context, ticketID string, actor domain.Actor, apply func(ticket *domain.Ticket) []fieldChange) (*domain.Ticket, error) {
	var (
		ticket    *domain.Ticket
		committed []domain.TicketEvent
	)
	err := s.locks.with(ticketID, func() error {
		return withRetry(ctx, func() error {
			committed = nil
			return s.store.WithinTx(ctx, func(tx repository.Store) error {
				current, err := s.lockVisible(ctx, tx, ticketID, actor)
				if err != nil {
					return err
				}
				if !s.access.CanMutateStatus(actor, current) {
					return apperrors.NewForbidden("not allowed to change this ticket")
				}
				changes := apply(current)
				if len(changes) == 0 {
					ticket = current
					return nil
				}
				now := s.now()
				current.UpdatedAt = later(current.UpdatedAt, now)
				if err := tx.Tickets().Update(ctx, current); err != nil {
					return err
				}
				var appended []domain.TicketEvent
				for _, change := range changes {
					event := newTicketEvent(current.ID, change.kind, actor, now)
					event.OldValue = change.oldValue
					event.NewValue = change.newValue
					if err := tx.Events().Append(ctx, &event); err != nil {
						return err
					}
					appended = append(appended, event)
				}
				ticket = current
				committed = appended
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, committed)
	return ticket, nil
}

// AutoAdvanceOnReply touches the ticket for a new reply and moves an OPEN
// ticket to IN_PROGRESS when a responder replied.
func (s *TicketStore) AutoAdvanceOnReply(ctx context.Context, ticketID string, byResponder bool) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.locks.with(ticketID, func() error {
		return withRetry(ctx, func() error {
			return s.store.WithinTx(ctx, func(tx repository.Store) error {
				current, err := tx.Tickets().GetForUpdate(ctx, ticketID)
				if err != nil {
					return ticketNotFound(ticketID, err)
				}
				if err := s.autoAdvanceTx(ctx, tx, current, byResponder, s.now()); err != nil {
					return err
				}
				ticket = current
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// autoAdvanceTx is the in-transaction form used by ReplyLog. The caller
// holds the ticket's row lock.
func (s *TicketStore) autoAdvanceTx(ctx context.Context, tx repository.Store, ticket *domain.Ticket, byResponder bool, at time.Time) error {
	if byResponder && ticket.Status == domain.TicketStatusOpen {
		ticket.Status = domain.TicketStatusInProgress
	}
	ticket.UpdatedAt = later(ticket.UpdatedAt, at)
	return tx.Tickets().Update(ctx, ticket)
}

// Get loads a ticket without any visibility check.
func (s *TicketStore) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := withRetry(ctx, func() error {
		var err error
		ticket, err = s.store.Tickets().GetByID(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, ticketNotFound(ticketID, err)
	}
	return ticket, nil
}

// GetVisible loads a ticket and reports not-found when actor may not see it.
func (s *TicketStore) GetVisible(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.access.CanView(actor, ticket) {
		return nil, ticketNotFound(ticketID, repository.ErrNotFound)
	}
	return ticket, nil
}

// List returns tickets matching filter without any visibility scoping.
func (s *TicketStore) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	err := withRetry(ctx, func() error {
		var err error
		tickets, err = s.store.Tickets().ListWithFilter(ctx, filter)
		return err
	})
	return tickets, err
}

func (s *TicketStore) lockVisible(ctx context.Context, tx repository.Store, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetForUpdate(ctx, ticketID)
	if err != nil {
		return nil, ticketNotFound(ticketID, err)
	}
	if !s.access.CanView(actor, ticket) {
		return nil, ticketNotFound(ticketID, repository.ErrNotFound)
	}
	return ticket, nil
}

// publish hands committed outbox rows to the dispatcher. A failed publish
// leaves the rows pending for the outbox relay.
func (s *TicketStore) publish(ctx context.Context, committed []domain.TicketEvent) {
	for _, event := range committed {
		s.metrics.RecordTicketEvent(string(event.Kind))
		if s.dispatcher == nil {
			continue
		}
		if err := s.dispatcher.Publish(ctx, events.FromTicketEvent(event)); err != nil {
			s.logger.Warn("event publish failed, left for relay",
				zap.String("event_id", event.ID),
				zap.String("ticket_id", event.TicketID),
				zap.String("event_type", string(event.Kind)),
				zap.Error(err))
		}
	}
}

func newTicketEvent(ticketID string, kind domain.EventKind, actor domain.Actor, at time.Time) domain.TicketEvent {
	return domain.TicketEvent{
		ID:        ids.NewUUID(),
		TicketID:  ticketID,
		Kind:      kind,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: at,
	}
}

func ticketNotFound(ticketID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticketId": ticketID})
	}
	return err
}

// later keeps timestamps monotonic when the clock steps backwards.
func later(current, candidate time.Time) time.Time {
	if candidate.Before(current) {
		return current
	}
	return candidate
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
