package domain

import "time"

// Reply is a message appended to a ticket thread.
type Reply struct {
	ID        string
	TicketID  string
	AuthorID  string
	Message   string
	CreatedAt time.Time
}

// Before reports whether r sorts ahead of other in thread order.
func (r Reply) Before(other Reply) bool {
	if r.CreatedAt.Equal(other.CreatedAt) {
		return r.ID < other.ID
	}
	return r.CreatedAt.Before(other.CreatedAt)
}
