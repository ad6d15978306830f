package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-core/internal/domain"
)

const notificationColumns = `id, recipient_id, kind, ticket_id, event_id, metadata, read, read_at, created_at`

type notificationRepository struct {
	db querier
}

// Upsert relies on the partial unique index over unread (recipient_id, ticket_id, kind).
// xmax is non-zero on the conflict-update path, which marks a fold.
func (r *notificationRepository) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	const query = `
        INSERT INTO notifications (id, recipient_id, kind, ticket_id, event_id, metadata, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)
        ON CONFLICT (recipient_id, ticket_id, kind) WHERE NOT read
        DO UPDATE SET created_at=EXCLUDED.created_at, metadata=EXCLUDED.metadata, event_id=EXCLUDED.event_id
        RETURNING id, (xmax <> 0)`
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	var folded bool
	if err := r.db.QueryRow(ctx, query,
		n.ID,
		n.RecipientID,
		n.Kind,
		n.TicketID,
		n.EventID,
		metadata,
		n.CreatedAt,
	).Scan(&n.ID, &folded); err != nil {
		return false, err
	}
	return folded, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id=$1`
	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE notifications SET read=TRUE, read_at=$1 WHERE id=$2 AND NOT read`
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}

func (r *notificationRepository) MarkAllReadForTicket(ctx context.Context, ticketID, recipientID string, seenUpTo, at time.Time) (int64, error) {
	const query = `
        UPDATE notifications SET read=TRUE, read_at=$1
        WHERE recipient_id=$2 AND ticket_id=$3 AND NOT read AND created_at <= $4`
	cmd, err := r.db.Exec(ctx, query, at, recipientID, ticketID, seenUpTo)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT read`
	var count int64
	err := r.db.QueryRow(ctx, query, recipientID).Scan(&count)
	return count, err
}

func (r *notificationRepository) HasUnreadForTicket(ctx context.Context, ticketID, recipientID string) (bool, error) {
	const query = `
        SELECT EXISTS (SELECT 1 FROM notifications WHERE recipient_id=$1 AND ticket_id=$2 AND NOT read)`
	var exists bool
	err := r.db.QueryRow(ctx, query, recipientID, ticketID).Scan(&exists)
	return exists, err
}

func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	args := []any{filter.RecipientID}
	clauses := []string{"recipient_id=$1"}
	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("ticket_id=$%d", len(args)))
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "NOT read")
	}
	limit := clampLimit(filter.Limit, 50, 200)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		notificationColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Kind,
		&n.TicketID,
		&n.EventID,
		&n.Metadata,
		&n.Read,
		&n.ReadAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
