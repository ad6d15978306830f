package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

func TestAddReplyValidationAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	_, err := f.support.Replies.AddReply(ctx, "missing", alice, "  ")
	requireCode(t, err, apperrors.CodeValidation)
	assert.Equal(t, "message", errorField(err))

	_, err = f.support.Replies.AddReply(ctx, "missing", alice, "hello")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.support.Replies.AddReply(ctx, ticket.ID, bob, "hello")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.support.Replies.AddReply(ctx, ticket.ID, erin, "hello")
	requireCode(t, err, apperrors.CodeNotFound)

	replies, err := f.support.Replies.ListReplies(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.NotNil(t, replies)
}

func TestOwnerReplyKeepsStatusAndNotifiesResponders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	reply, err := f.support.Replies.AddReply(ctx, ticket.ID, alice, "  any news?  ")
	require.NoError(t, err)
	assert.Equal(t, "any news?", reply.Message)
	assert.Equal(t, "alice", reply.AuthorID)

	current := f.ticket(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, current.Status)
	assert.True(t, current.UpdatedAt.After(ticket.UpdatedAt))

	for _, responder := range []domain.Actor{carol, dave} {
		unread := f.unread(t, responder, domain.EventNewReply)
		require.Len(t, unread, 1)
		assert.Equal(t, reply.ID, unread[0].Metadata[domain.MetaReplyID])
	}
	assert.Empty(t, f.unread(t, alice, domain.EventNewReply))
	assert.Empty(t, f.unread(t, root, domain.EventNewReply))
}

func TestResponderReplyNotifiesOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	_, err := f.support.Replies.AddReply(ctx, ticket.ID, root, "looking into it")
	require.NoError(t, err)

	assert.Len(t, f.unread(t, alice, domain.EventNewReply), 1)
	assert.Empty(t, f.unread(t, carol, domain.EventNewReply))
	assert.Empty(t, f.unread(t, root, domain.EventNewReply))
	assert.Equal(t, domain.TicketStatusInProgress, f.ticket(t, ticket.ID).Status)
}

func TestAutoAdvanceRaisesNoStatusNotification(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, alice)

	_, err := f.support.Replies.AddReply(context.Background(), ticket.ID, carol, "on it")
	require.NoError(t, err)
	assert.Empty(t, f.unread(t, alice, domain.EventStatusChanged))
}

func TestListRepliesIsStableAndGrowing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, alice)

	previous := []domain.Reply{}
	authors := []domain.Actor{alice, carol, alice, root, dave, alice}
	for i, author := range authors {
		_, err := f.support.Replies.AddReply(ctx, ticket.ID, author, fmt.Sprintf("message %d", i))
		require.NoError(t, err)

		replies, err := f.support.Replies.ListReplies(ctx, ticket.ID)
		require.NoError(t, err)
		require.Len(t, replies, i+1)
		assert.Equal(t, previous, replies[:len(previous)], "earlier replies keep their place")
		for j := 1; j < len(replies); j++ {
			assert.True(t, replies[j-1].Before(replies[j]))
		}
		previous = replies
	}
	assert.Equal(t, "message 5", previous[5].Message)
}

func TestListRepliesUnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.support.Replies.ListReplies(context.Background(), "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}
