package service

import (
	"context"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/repository"
)

// AccessFilter is the only place roles are interpreted. Every read and
// write path asks it before touching a ticket.
type AccessFilter struct {
	tickets            repository.TicketRepository
	allowReplyOnClosed bool
}

// NewAccessFilter builds the filter. allowReplyOnClosed applies to every role.
func NewAccessFilter(tickets repository.TicketRepository, allowReplyOnClosed bool) *AccessFilter {
	return &AccessFilter{tickets: tickets, allowReplyOnClosed: allowReplyOnClosed}
}

// AllowsReplyOnClosed reports the CLOSED-ticket reply policy in force.
func (f *AccessFilter) AllowsReplyOnClosed() bool {
	return f.allowReplyOnClosed
}

// CanView reports whether actor may see ticket at all.
func (f *AccessFilter) CanView(actor domain.Actor, ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	if ticket.OwnerID == actor.ID {
		return true
	}
	return f.inScope(actor, ticket)
}

// CanMutateStatus covers both status and priority overrides.
func (f *AccessFilter) CanMutateStatus(actor domain.Actor, ticket *domain.Ticket) bool {
	return ticket != nil && f.inScope(actor, ticket)
}

// CanReply requires ownership or an in-scope responder role, and honours
// the CLOSED-ticket policy.
func (f *AccessFilter) CanReply(actor domain.Actor, ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	if ticket.Status.Terminal() && !f.allowReplyOnClosed {
		return false
	}
	return ticket.OwnerID == actor.ID || f.inScope(actor, ticket)
}

// Scope narrows filter to what actor may see. ok is false when the actor
// can see nothing.
func (f *AccessFilter) Scope(actor domain.Actor, filter repository.TicketFilter) (repository.TicketFilter, bool) {
	filter.OwnerID = nil
	filter.OrganizationID = nil
	switch actor.Role {
	case domain.RoleSuperAdmin:
	case domain.RoleOrgAdmin:
		if actor.OrganizationID == nil {
			return filter, false
		}
		org := *actor.OrganizationID
		filter.OrganizationID = &org
	case domain.RoleEndUser:
		owner := actor.ID
		filter.OwnerID = &owner
	default:
		return filter, false
	}
	return filter, true
}

// VisibleTickets lists the tickets actor may see, most recently updated first.
func (f *AccessFilter) VisibleTickets(ctx context.Context, actor domain.Actor, filter repository.TicketFilter) ([]domain.Ticket, error) {
	scoped, ok := f.Scope(actor, filter)
	if !ok {
		return []domain.Ticket{}, nil
	}
	var tickets []domain.Ticket
	err := withRetry(ctx, func() error {
		var err error
		tickets, err = f.tickets.ListWithFilter(ctx, scoped)
		return err
	})
	return tickets, err
}

func (f *AccessFilter) inScope(actor domain.Actor, ticket *domain.Ticket) bool {
	switch actor.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleOrgAdmin:
		return ticket.InOrganization(actor.OrganizationID)
	}
	return false
}
