package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketCategory classifies what a ticket is about.
type TicketCategory string

const (
	TicketCategoryTechnical      TicketCategory = "TECHNICAL"
	TicketCategoryBilling        TicketCategory = "BILLING"
	TicketCategoryGeneral        TicketCategory = "GENERAL"
	TicketCategoryFeatureRequest TicketCategory = "FEATURE_REQUEST"
)

// statusRank orders statuses along the automatic lifecycle.
var statusRank = map[TicketStatus]int{
	TicketStatusOpen:       0,
	TicketStatusInProgress: 1,
	TicketStatusResolved:   2,
	TicketStatusClosed:     3,
}

// Valid reports whether s is a recognized status.
func (s TicketStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the automatic lifecycle, -1 if unknown.
func (s TicketStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether no further replies are expected.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// Valid reports whether p is a recognized priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Valid reports whether c is a recognized category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryTechnical, TicketCategoryBilling, TicketCategoryGeneral, TicketCategoryFeatureRequest:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Subject        string
	Description    string
	Category       TicketCategory
	Status         TicketStatus
	Priority       TicketPriority
	OwnerID        string
	OrganizationID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InOrganization reports whether the ticket belongs to orgID.
func (t *Ticket) InOrganization(orgID *string) bool {
	if t.OrganizationID == nil || orgID == nil {
		return false
	}
	return *t.OrganizationID == *orgID
}
