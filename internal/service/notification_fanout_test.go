package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/repository"
)

func TestRepeatedEventsFoldIntoOneUnreadRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	_, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, "first")
	require.NoError(t, err)
	second, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, "second")
	require.NoError(t, err)

	unread := f.unread(t, alice, domain.EventNewReply)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].Metadata[domain.MetaReplyID])
	assert.True(t, unread[0].CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, 2, f.delivered.count("alice", domain.EventNewReply), "each event is still pushed")

	count, err := f.support.Notifications.UnreadCountFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDifferentKindsDoNotFold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	_, err := f.support.Tickets.UpdatePriority(ctx, ticket.ID, domain.TicketPriorityUrgent, carol)
	require.NoError(t, err)
	_, err = f.support.Tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusResolved, carol)
	require.NoError(t, err)

	count, err := f.support.Notifications.UnreadCountFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestEmitExcludesTriggeringActor(t *testing.T) {
	f := newFixture(t, withoutDispatcher)
	ctx := context.Background()
	ticket := f.createTicket(t, carol)

	out, err := f.support.Fanout.Emit(ctx, domain.TicketEvent{
		ID:        "manual",
		TicketID:  ticket.ID,
		Kind:      domain.EventNewReply,
		ActorID:   "dave",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, out, 1, "a non-owner reply goes to the owner only")
	assert.Equal(t, "carol", out[0].RecipientID)

	out, err = f.support.Fanout.Emit(ctx, domain.TicketEvent{
		ID:        "manual-2",
		TicketID:  ticket.ID,
		Kind:      domain.EventStatusChanged,
		ActorID:   "carol",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, out, "owners are not told about their own changes")
}

func TestOutboxRelayDeliversPendingEvents(t *testing.T) {
	f := newFixture(t, withoutDispatcher)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)
	_, err := f.support.Replies.AddReply(ctx, ticket.ID, carol, "hi")
	require.NoError(t, err)

	assert.Empty(t, f.unread(t, alice, domain.EventNewReply), "nothing emitted before the relay runs")

	processed, err := f.support.Fanout.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Len(t, f.unread(t, alice, domain.EventNewReply), 1)
	assert.Len(t, f.unread(t, dave, domain.EventNewTicket), 1)

	processed, err = f.support.Fanout.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, processed)

	processed, err = f.support.Fanout.ProcessTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Zero(t, processed, "processed events are never emitted twice")
	assert.Equal(t, 1, f.delivered.count("alice", domain.EventNewReply))
}

func TestFanoutAppliesEventsInSequence(t *testing.T) {
	f := newFixture(t, withoutDispatcher)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	for _, status := range []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	} {
		_, err := f.support.Tickets.UpdateStatus(ctx, ticket.ID, status, carol)
		require.NoError(t, err)
	}

	_, err := f.support.Fanout.ProcessTicket(ctx, ticket.ID)
	require.NoError(t, err)

	unread := f.unread(t, alice, domain.EventStatusChanged)
	require.Len(t, unread, 1)
	assert.Equal(t, "RESOLVED", unread[0].Metadata[domain.MetaOldValue])
	assert.Equal(t, "CLOSED", unread[0].Metadata[domain.MetaNewValue])
}

func TestFanoutRetriesTransientFailure(t *testing.T) {
	f := newFixture(t, withoutDispatcher)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	f.store.FailNextTx(repository.ErrTransient)
	processed, err := f.support.Fanout.ProcessTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Len(t, f.unread(t, carol, domain.EventNewTicket), 1)
}

func TestFanoutFailureLeavesEventPending(t *testing.T) {
	f := newFixture(t, withoutDispatcher)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	f.store.FailNextTx(repository.ErrTransient, repository.ErrTransient)
	_, err := f.support.Fanout.ProcessTicket(ctx, ticket.ID)
	require.Error(t, err)
	assert.Empty(t, f.unread(t, carol, domain.EventNewTicket))

	pending, err := f.store.Events().PendingTickets(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, pending)

	_, err = f.support.Fanout.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, f.unread(t, carol, domain.EventNewTicket), 1)
}

func TestShardedDispatcherDrivesFanout(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	for i := range allActors {
		actor := allActors[i]
		require.NoError(t, store.Actors().Upsert(ctx, &actor))
	}
	dispatcher := events.NewShardedDispatcher(4, 16, nil, nil)
	support := NewSupport(Dependencies{Store: store, Dispatcher: dispatcher})
	support.Fanout.RegisterHandlers(dispatcher)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	ticket, err := support.Tickets.CreateTicket(ctx, alice, TicketCreateInput{
		Subject: "s", Description: "d", Category: domain.TicketCategoryGeneral,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(author domain.Actor) {
			defer wg.Done()
			_, err := support.Replies.AddReply(ctx, ticket.ID, author, "ping")
			assert.NoError(t, err)
		}([]domain.Actor{alice, carol}[i%2])
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		pending, err := store.Events().PendingTickets(ctx, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	unread, err := support.Notifications.UnreadForTicket(ctx, ticket.ID, "alice")
	require.NoError(t, err)
	assert.True(t, unread)
	inbox, err := support.Notifications.Inbox(ctx, "carol", true, 50, 0)
	require.NoError(t, err)
	kinds := map[domain.EventKind]int{}
	for _, n := range inbox {
		kinds[n.Kind]++
	}
	assert.Equal(t, map[domain.EventKind]int{domain.EventNewTicket: 1, domain.EventNewReply: 1}, kinds)
}
