package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-core/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookChannel POSTs the notification payload as JSON to a fixed URL.
type WebhookChannel struct {
	url     string
	timeout time.Duration
}

// NewWebhookChannel returns nil when url is empty.
func NewWebhookChannel(url string, timeout time.Duration) Channel {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookChannel{url: url, timeout: timeout}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, n domain.Notification) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.Post(c.url).JSON(NewPayload(n)).Timeout(timeout)
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook responded %d: %s", status, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
