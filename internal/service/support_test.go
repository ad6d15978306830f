package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

func TestOpenTicketMarksViewerNotificationsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)
	_, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, "hello")
	require.NoError(t, err)

	opened, replies, err := f.support.OpenTicket(ctx, alice, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, opened.ID)
	require.Len(t, replies, 1)

	unread, err := f.support.Notifications.UnreadForTicket(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	assert.False(t, unread)
	assert.Len(t, f.unread(t, dave, domain.EventNewTicket), 1, "only the viewer is acknowledged")

	_, _, err = f.support.OpenTicket(ctx, bob, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)
	_, err = f.support.MarkTicketRead(ctx, erin, ticket.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	marked, err := f.support.MarkTicketRead(ctx, dave, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
}

func TestScenarioResponderReplyAdvancesTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)
	require.Equal(t, domain.TicketStatusOpen, ticket.Status)

	_, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, "taking a look")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, f.ticket(t, ticket.ID).Status)
	unread := f.unread(t, alice, domain.EventNewReply)
	require.Len(t, unread, 1)
	assert.Equal(t, ticket.ID, unread[0].TicketID)
}

func TestScenarioPriorityEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	_, err := f.support.Tickets.UpdatePriority(ctx, ticket.ID, domain.TicketPriorityUrgent, carol)
	require.NoError(t, err)

	owner := f.unread(t, alice, domain.EventPriorityChanged)
	require.Len(t, owner, 1)
	assert.Equal(t, "URGENT", owner[0].Metadata[domain.MetaNewValue])
	assert.Empty(t, f.unread(t, carol, domain.EventPriorityChanged))
	assert.Empty(t, f.unread(t, dave, domain.EventPriorityChanged))
}

func TestScenarioClosedTicketRejectsReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)
	_, err := f.support.Tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed, root)
	require.NoError(t, err)

	for _, actor := range []domain.Actor{alice, carol, root} {
		_, err := f.support.Replies.AddReply(ctx, ticket.ID, actor, "one more thing")
		requireCode(t, err, apperrors.CodeForbidden)
	}
	replies, err := f.support.Replies.ListReplies(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Equal(t, domain.TicketStatusClosed, f.ticket(t, ticket.ID).Status)
}

func TestScenarioClosedTicketAcceptsRepliesWhenAllowed(t *testing.T) {
	f := newFixture(t, allowReplyOnClosed)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)
	_, err := f.support.Tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed, root)
	require.NoError(t, err)

	for _, actor := range []domain.Actor{alice, carol, root} {
		_, err := f.support.Replies.AddReply(ctx, ticket.ID, actor, "one more thing")
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, f.ticket(t, ticket.ID).Status)
	}
	replies, err := f.support.Replies.ListReplies(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, replies, 3)
}

func TestConcurrentActorsKeepInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := f.support.Replies.AddReply(ctx, ticket.ID, alice, fmt.Sprintf("owner %d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, fmt.Sprintf("admin %d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			priority := []domain.TicketPriority{domain.TicketPriorityHigh, domain.TicketPriorityLow}[i%2]
			_, err := f.support.Tickets.UpdatePriority(ctx, ticket.ID, priority, dave)
			assert.NoError(t, err)
			_, err = f.support.MarkTicketRead(ctx, alice, ticket.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	replies, err := f.support.Replies.ListReplies(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2*rounds)
	for i := 1; i < len(replies); i++ {
		assert.True(t, replies[i-1].Before(replies[i]))
	}

	assert.Equal(t, domain.TicketStatusInProgress, f.ticket(t, ticket.ID).Status)

	pending, err := f.store.Events().PendingTickets(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	for _, recipient := range []string{"alice", "carol", "dave"} {
		inbox, err := f.support.Notifications.Inbox(ctx, recipient, true, 200, 0)
		require.NoError(t, err)
		seen := map[domain.EventKind]int{}
		for _, n := range inbox {
			seen[n.Kind]++
		}
		for kind, count := range seen {
			assert.Equalf(t, 1, count, "%s has %d unread %s rows", recipient, count, kind)
		}
	}
}
