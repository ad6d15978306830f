package dto

import (
	"time"

	"github.com/spec-kit/support-core/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest carries an administrative override. At least one
// field must be set.
type UpdateTicketRequest struct {
	Status   *domain.TicketStatus   `json:"status"`
	Priority *domain.TicketPriority `json:"priority"`
}

// CreateReplyRequest payload.
type CreateReplyRequest struct {
	Message string `json:"message"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	Subject        string                `json:"subject"`
	Category       domain.TicketCategory `json:"category"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	OwnerID        string                `json:"owner_id"`
	OrganizationID *string               `json:"organization_id"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string          `json:"description"`
	Replies     []ReplyResponse `json:"replies"`
}

// ReplyResponse represents one thread entry. MessageHTML is the sanitized
// markdown rendering of Message.
type ReplyResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	AuthorID    string    `json:"author_id"`
	Message     string    `json:"message"`
	MessageHTML string    `json:"message_html"`
	CreatedAt   time.Time `json:"created_at"`
}
