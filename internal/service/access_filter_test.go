package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/repository"
)

func TestAccessFilterRules(t *testing.T) {
	access := NewAccessFilter(nil, false)
	open := &domain.Ticket{ID: "t", OwnerID: "alice", OrganizationID: org("acme"), Status: domain.TicketStatusOpen}
	closed := &domain.Ticket{ID: "c", OwnerID: "alice", OrganizationID: org("acme"), Status: domain.TicketStatusClosed}

	cases := []struct {
		actor            domain.Actor
		view, mutate     bool
		reply, replyDone bool
	}{
		{alice, true, false, true, false},
		{bob, false, false, false, false},
		{carol, true, true, true, false},
		{erin, false, false, false, false},
		{root, true, true, true, false},
		{frank, false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.actor.ID, func(t *testing.T) {
			assert.Equal(t, tc.view, access.CanView(tc.actor, open))
			assert.Equal(t, tc.mutate, access.CanMutateStatus(tc.actor, open))
			assert.Equal(t, tc.reply, access.CanReply(tc.actor, open))
			assert.Equal(t, tc.replyDone, access.CanReply(tc.actor, closed))
		})
	}

	assert.False(t, access.CanView(root, nil))
	assert.False(t, access.CanReply(alice, nil))
}

func TestAccessFilterClosedPolicyAppliesToEveryRole(t *testing.T) {
	access := NewAccessFilter(nil, true)
	assert.True(t, access.AllowsReplyOnClosed())
	closed := &domain.Ticket{ID: "c", OwnerID: "alice", OrganizationID: org("acme"), Status: domain.TicketStatusClosed}
	for _, actor := range []domain.Actor{alice, carol, root} {
		assert.True(t, access.CanReply(actor, closed), actor.ID)
	}
	assert.False(t, access.CanReply(bob, closed))
}

func TestPlatformTicketsBelongToSuperAdmins(t *testing.T) {
	access := NewAccessFilter(nil, false)
	platform := &domain.Ticket{ID: "p", OwnerID: "frank", Status: domain.TicketStatusOpen}

	assert.True(t, access.CanView(frank, platform))
	assert.True(t, access.CanMutateStatus(root, platform))
	assert.False(t, access.CanView(carol, platform))
}

func TestVisibleTicketsPerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.createTicket(t, alice)
	b1 := f.createTicket(t, bob)
	p1 := f.createTicket(t, frank)
	a2 := f.createTicket(t, alice)

	ids := func(actor domain.Actor, filter repository.TicketFilter) []string {
		tickets, err := f.support.Access.VisibleTickets(ctx, actor, filter)
		require.NoError(t, err)
		out := []string{}
		for _, ticket := range tickets {
			out = append(out, ticket.ID)
		}
		return out
	}

	assert.Equal(t, []string{a2.ID, a1.ID}, ids(alice, repository.TicketFilter{}))
	assert.Equal(t, []string{a2.ID, b1.ID, a1.ID}, ids(carol, repository.TicketFilter{}))
	assert.Empty(t, ids(erin, repository.TicketFilter{}))
	assert.Equal(t, []string{a2.ID, p1.ID, b1.ID, a1.ID}, ids(root, repository.TicketFilter{}))

	// Caller-supplied scope fields cannot widen visibility.
	assert.Equal(t, []string{a2.ID, a1.ID}, ids(alice, repository.TicketFilter{OwnerID: org("bob")}))

	_, err := f.support.Replies.AddReply(ctx, a1.ID, carol, "bump")
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, a2.ID}, ids(alice, repository.TicketFilter{}), "most recently updated first")
	assert.Equal(t, []string{a1.ID}, ids(carol, repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusInProgress}}))
}

func TestOrgAdminWithoutOrganizationSeesNothing(t *testing.T) {
	access := NewAccessFilter(nil, false)
	_, ok := access.Scope(domain.Actor{ID: "x", Role: domain.RoleOrgAdmin}, repository.TicketFilter{})
	assert.False(t, ok)
	_, ok = access.Scope(domain.Actor{ID: "y", Role: "GUEST"}, repository.TicketFilter{})
	assert.False(t, ok)
}
