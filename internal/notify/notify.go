package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/observability"
)

// Deliverer pushes a stored notification to its recipient. Delivery is
// best effort; the stored row stays the source of truth.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// Channel is a named Deliverer.
type Channel interface {
	Deliverer
	Name() string
}

// Payload is the wire shape pushed by every channel.
type Payload struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	Kind        string         `json:"kind"`
	TicketID    string         `json:"ticketId"`
	EventID     string         `json:"eventId"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewPayload converts a notification to its wire shape.
func NewPayload(n domain.Notification) Payload {
	return Payload{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Kind:        string(n.Kind),
		TicketID:    n.TicketID,
		EventID:     n.EventID,
		Metadata:    n.Metadata,
		CreatedAt:   n.CreatedAt,
	}
}

// Multi fans a notification out to every configured channel.
type Multi struct {
	channels []Channel
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewMulti combines channels. Nil channels are skipped.
func NewMulti(logger *zap.Logger, metrics *observability.Metrics, channels ...Channel) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{metrics: metrics, logger: logger}
	for _, ch := range channels {
		if ch != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

// Names lists the active channels.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Deliver tries every channel and joins their failures.
func (m *Multi) Deliver(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Deliver(ctx, n)
		m.metrics.RecordDelivery(ch.Name(), err)
		if err != nil {
			m.logger.Warn("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Summary renders a one-line human description of a notification.
func Summary(n domain.Notification) string {
	subject, _ := n.Metadata[domain.MetaSubject].(string)
	switch n.Kind {
	case domain.EventNewTicket:
		return fmt.Sprintf("New ticket: %s", subject)
	case domain.EventNewReply:
		return fmt.Sprintf("New reply on: %s", subject)
	case domain.EventStatusChanged:
		return fmt.Sprintf("Status of %q changed to %v", subject, n.Metadata[domain.MetaNewValue])
	case domain.EventPriorityChanged:
		return fmt.Sprintf("Priority of %q changed to %v", subject, n.Metadata[domain.MetaNewValue])
	}
	return subject
}
