package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

// NotificationReconciler owns read state.
type NotificationReconciler struct {
	store repository.Store
	now   func() time.Time
}

// MarkRead marks one notification read for its recipient. Marking an
// already read notification succeeds without changing it.
func (r *NotificationReconciler) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	return withRetry(ctx, func() error {
		return r.store.WithinTx(ctx, func(tx repository.Store) error {
			n, err := tx.Notifications().GetByID(ctx, notificationID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("notification", map[string]any{"notificationId": notificationID})
			}
			if err != nil {
				return err
			}
			if n.RecipientID != recipientID {
				return apperrors.NewForbidden("notification belongs to another recipient")
			}
			if n.Read {
				return nil
			}
			return tx.Notifications().MarkRead(ctx, notificationID, r.now())
		})
	})
}

// MarkAllReadForTicket marks recipient's unread notifications on ticket
// read in one statement and returns how many changed. Only notifications
// created at or before seenUpTo are acknowledged, so an event emitted
// after the viewer loaded the ticket stays unread.
func (r *NotificationReconciler) MarkAllReadForTicket(ctx context.Context, ticketID, recipientID string, seenUpTo time.Time) (int64, error) {
	var count int64
	err := withRetry(ctx, func() error {
		var err error
		count, err = r.store.Notifications().MarkAllReadForTicket(ctx, ticketID, recipientID, seenUpTo, r.now())
		return err
	})
	return count, err
}

// UnreadCountFor returns the badge count for recipient.
func (r *NotificationReconciler) UnreadCountFor(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := withRetry(ctx, func() error {
		var err error
		count, err = r.store.Notifications().CountUnread(ctx, recipientID)
		return err
	})
	return count, err
}

// UnreadForTicket reports whether recipient has anything unread on ticket.
func (r *NotificationReconciler) UnreadForTicket(ctx context.Context, ticketID, recipientID string) (bool, error) {
	var unread bool
	err := withRetry(ctx, func() error {
		var err error
		unread, err = r.store.Notifications().HasUnreadForTicket(ctx, ticketID, recipientID)
		return err
	})
	return unread, err
}

// Inbox lists recipient's notifications, newest first.
func (r *NotificationReconciler) Inbox(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := withRetry(ctx, func() error {
		var err error
		out, err = r.store.Notifications().List(ctx, repository.NotificationFilter{
			RecipientID: recipientID,
			UnreadOnly:  unreadOnly,
			Limit:       limit,
			Offset:      offset,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}
