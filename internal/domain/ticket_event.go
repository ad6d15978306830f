package domain

import "time"

// TicketEvent is an outbox entry recording the decision to notify. It is
// written in the same transaction as the change that caused it.
type TicketEvent struct {
	ID          string
	Seq         int64
	TicketID    string
	Kind        EventKind
	ActorID     string
	ActorRole   Role
	OldValue    string
	NewValue    string
	ReplyID     string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Pending reports whether the fan-out has not consumed the event yet.
func (e *TicketEvent) Pending() bool {
	return e.ProcessedAt == nil
}
