package domain

import "time"

// EventKind names a ticket-affecting event and the notification it produces.
type EventKind string

const (
	EventNewTicket       EventKind = "NEW_TICKET"
	EventNewReply        EventKind = "NEW_REPLY"
	EventStatusChanged   EventKind = "STATUS_CHANGED"
	EventPriorityChanged EventKind = "PRIORITY_CHANGED"
)

// Valid reports whether k is a recognized kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventNewTicket, EventNewReply, EventStatusChanged, EventPriorityChanged:
		return true
	}
	return false
}

// Notification is a recipient-targeted record of a ticket event.
type Notification struct {
	ID          string
	RecipientID string
	Kind        EventKind
	TicketID    string
	EventID     string
	Metadata    map[string]any
	Read        bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// Metadata keys.
const (
	MetaTicketID    = "ticketId"
	MetaSubject     = "subject"
	MetaTriggeredBy = "triggeredBy"
	MetaOldValue    = "oldValue"
	MetaNewValue    = "newValue"
	MetaReplyID     = "replyId"
)
