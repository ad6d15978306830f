package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/ids"
	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

const maxMessageLength = 10000

// ReplyLog owns the append-only reply thread of each ticket.
type ReplyLog struct {
	tickets *TicketStore
	store   repository.Store
	access  *AccessFilter
	locks   *ticketLocks
	logger  *zap.Logger
}

// AddReply appends a reply. The insert, the ticket auto-advance and the
// NEW_REPLY outbox row commit together.
func (l *ReplyLog) AddReply(ctx context.Context, ticketID string, actor domain.Actor, message string) (*domain.Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.NewValidationError("message", "message is required")
	}
	if len(message) > maxMessageLength {
		return nil, apperrors.NewValidationError("message", "message is too long")
	}

	var (
		reply     *domain.Reply
		committed []domain.TicketEvent
	)
	err := l.locks.with(ticketID, func() error {
		return withRetry(ctx, func() error {
			committed = nil
			return l.store.WithinTx(ctx, func(tx repository.Store) error {
				ticket, err := l.tickets.lockVisible(ctx, tx, ticketID, actor)
				if err != nil {
					return err
				}
				if !l.access.CanReply(actor, ticket) {
					if ticket.Status.Terminal() {
						return apperrors.NewForbidden("ticket is closed")
					}
					return apperrors.NewForbidden("not allowed to reply to this ticket")
				}

				now := l.tickets.now()
				candidate := &domain.Reply{
					ID:        ids.NewSortable(now),
					TicketID:  ticket.ID,
					AuthorID:  actor.ID,
					Message:   message,
					CreatedAt: now,
				}
				if err := tx.Replies().Create(ctx, candidate); err != nil {
					return err
				}
				if err := l.tickets.autoAdvanceTx(ctx, tx, ticket, actor.IsResponder(), now); err != nil {
					return err
				}
				event := newTicketEvent(ticket.ID, domain.EventNewReply, actor, now)
				event.ReplyID = candidate.ID
				if err := tx.Events().Append(ctx, &event); err != nil {
					return err
				}
				reply = candidate
				committed = append(committed, event)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("reply added",
		zap.String("ticket_id", ticketID),
		zap.String("reply_id", reply.ID),
		zap.String("author_id", actor.ID))
	l.tickets.publish(ctx, committed)
	return reply, nil
}

// ListReplies returns the thread ordered by creation time, then id.
func (l *ReplyLog) ListReplies(ctx context.Context, ticketID string) ([]domain.Reply, error) {
	if _, err := l.tickets.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	var replies []domain.Reply
	err := withRetry(ctx, func() error {
		var err error
		replies, err = l.store.Replies().ListByTicket(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if replies == nil {
		replies = []domain.Reply{}
	}
	return replies, nil
}
