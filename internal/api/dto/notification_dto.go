package dto

import (
	"time"

	"github.com/spec-kit/support-core/internal/domain"
)

// MarkReadRequest accepts either key spelling used by UI clients.
type MarkReadRequest struct {
	NotificationID      string `json:"notification_id"`
	NotificationIDCamel string `json:"notificationId"`
}

// ID returns whichever id the client sent.
func (r MarkReadRequest) ID() string {
	if r.NotificationID != "" {
		return r.NotificationID
	}
	return r.NotificationIDCamel
}

// NotificationResponse is one inbox row.
type NotificationResponse struct {
	ID        string           `json:"id"`
	Kind      domain.EventKind `json:"kind"`
	TicketID  string           `json:"ticket_id"`
	Metadata  map[string]any   `json:"metadata"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// UnreadCountResponse is the badge payload.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// MarkedResponse reports how many notifications a bulk read acknowledged.
type MarkedResponse struct {
	Marked int64 `json:"marked"`
}
