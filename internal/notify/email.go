package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/repository"
)

// EmailSender is the part of the Resend client the channel needs.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailChannel mails a short summary of each notification through Resend.
type EmailChannel struct {
	sender EmailSender
	from   string
	actors repository.ActorDirectory
}

// NewEmailChannel builds a Resend-backed channel. It returns nil unless
// both the API key and the sender address are configured.
func NewEmailChannel(apiKey, from string, actors repository.ActorDirectory) Channel {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return nil
	}
	return NewEmailChannelWithSender(resend.NewClient(apiKey).Emails, from, actors)
}

// NewEmailChannelWithSender wires a custom sender.
func NewEmailChannelWithSender(sender EmailSender, from string, actors repository.ActorDirectory) *EmailChannel {
	return &EmailChannel{sender: sender, from: from, actors: actors}
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver skips recipients without an email address.
func (c *EmailChannel) Deliver(ctx context.Context, n domain.Notification) error {
	actor, err := c.actors.GetByID(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", n.RecipientID, err)
	}
	if strings.TrimSpace(actor.Email) == "" {
		return nil
	}
	summary := Summary(n)
	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{actor.Email},
		Subject: summary,
		Text:    fmt.Sprintf("%s\n\nTicket: %s\n", summary, n.TicketID),
		Html:    fmt.Sprintf("<p>%s</p><p>Ticket: <code>%s</code></p>", html.EscapeString(summary), html.EscapeString(n.TicketID)),
	}
	if _, err := c.sender.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}
