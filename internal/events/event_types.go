package events

import (
	"time"

	"github.com/spec-kit/support-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType = domain.EventKind

const (
	EventTicketCreated         EventType = domain.EventNewTicket
	EventTicketMessageAdded    EventType = domain.EventNewReply
	EventTicketStatusChanged   EventType = domain.EventStatusChanged
	EventTicketPriorityChanged EventType = domain.EventPriorityChanged
)

// AllTypes lists every event type a ticket can raise.
var AllTypes = []EventType{
	EventTicketCreated,
	EventTicketMessageAdded,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
}

// Event is the dispatch envelope for a committed outbox row. Handlers
// reload pending state from the outbox; the envelope only says which
// ticket has work.
type Event struct {
	ID        string
	Seq       int64
	Type      EventType
	TicketID  string
	ActorID   string
	Timestamp time.Time
}

// FromTicketEvent builds the envelope for a committed outbox row.
func FromTicketEvent(e domain.TicketEvent) Event {
	return Event{
		ID:        e.ID,
		Seq:       e.Seq,
		Type:      e.Kind,
		TicketID:  e.TicketID,
		ActorID:   e.ActorID,
		Timestamp: e.CreatedAt,
	}
}
