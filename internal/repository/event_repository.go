package repository

import (
	"context"
	"time"

	"github.com/spec-kit/support-core/internal/domain"
)

const eventColumns = `seq, id, ticket_id, kind, actor_id, actor_role, old_value, new_value, reply_id, created_at, processed_at`

type eventRepository struct {
	db querier
}

func (r *eventRepository) Append(ctx context.Context, event *domain.TicketEvent) error {
	const query = `
        INSERT INTO ticket_events (id, ticket_id, kind, actor_id, actor_role, old_value, new_value, reply_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING seq`
	return r.db.QueryRow(ctx, query,
		event.ID,
		event.TicketID,
		event.Kind,
		event.ActorID,
		event.ActorRole,
		event.OldValue,
		event.NewValue,
		event.ReplyID,
		event.CreatedAt,
	).Scan(&event.Seq)
}

func (r *eventRepository) LockTicket(ctx context.Context, ticketID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticketID)
	return err
}

func (r *eventRepository) ListPending(ctx context.Context, ticketID string) ([]domain.TicketEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ticket_events
        WHERE ticket_id=$1 AND processed_at IS NULL ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketEvent{}
	for rows.Next() {
		var event domain.TicketEvent
		if err := rows.Scan(
			&event.Seq,
			&event.ID,
			&event.TicketID,
			&event.Kind,
			&event.ActorID,
			&event.ActorRole,
			&event.OldValue,
			&event.NewValue,
			&event.ReplyID,
			&event.CreatedAt,
			&event.ProcessedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// PendingTickets returns tickets with unprocessed events, oldest first.
func (r *eventRepository) PendingTickets(ctx context.Context, limit int) ([]string, error) {
	const query = `
        SELECT ticket_id FROM ticket_events WHERE processed_at IS NULL
        GROUP BY ticket_id ORDER BY MIN(seq) LIMIT $1`
	rows, err := r.db.Query(ctx, query, clampLimit(limit, 100, 1000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func (r *eventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE ticket_events SET processed_at=$1 WHERE id=$2 AND processed_at IS NULL`, at, eventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
