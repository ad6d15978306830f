package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/repository"
)

func sampleNotification() domain.Notification {
	return domain.Notification{
		ID:          "01HZX",
		RecipientID: "owner-1",
		Kind:        domain.EventStatusChanged,
		TicketID:    "ticket-1",
		EventID:     "event-1",
		Metadata: map[string]any{
			domain.MetaTicketID: "ticket-1",
			domain.MetaSubject:  "Printer on fire",
			domain.MetaNewValue: "RESOLVED",
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message, _ = message.([]byte)
	if p.err != nil {
		return redis.NewIntResult(0, p.err)
	}
	return redis.NewIntResult(1, nil)
}

func TestRedisChannelPublishesPerRecipient(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewRedisChannel(pub, "inbox")
	require.NotNil(t, ch)

	require.NoError(t, ch.Deliver(context.Background(), sampleNotification()))
	assert.Equal(t, "inbox:owner-1", pub.channel)

	var payload Payload
	require.NoError(t, json.Unmarshal(pub.message, &payload))
	assert.Equal(t, "STATUS_CHANGED", payload.Kind)
	assert.Equal(t, "ticket-1", payload.Metadata[domain.MetaTicketID])
}

func TestRedisChannelDisabledWithoutClient(t *testing.T) {
	assert.Nil(t, NewRedisChannel(nil, ""))
}

type fakeSender struct {
	sent []*resend.SendEmailRequest
	err  error
}

func (s *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, params)
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func TestEmailChannelSendsToRecipientAddress(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Actors().Upsert(ctx, &domain.Actor{ID: "owner-1", Role: domain.RoleEndUser, Email: "owner@example.com"}))
	require.NoError(t, store.Actors().Upsert(ctx, &domain.Actor{ID: "quiet", Role: domain.RoleEndUser}))

	sender := &fakeSender{}
	ch := NewEmailChannelWithSender(sender, "support@example.com", store.Actors())

	require.NoError(t, ch.Deliver(ctx, sampleNotification()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"owner@example.com"}, sender.sent[0].To)
	assert.Equal(t, `Status of "Printer on fire" changed to RESOLVED`, sender.sent[0].Subject)

	n := sampleNotification()
	n.RecipientID = "quiet"
	require.NoError(t, ch.Deliver(ctx, n))
	assert.Len(t, sender.sent, 1, "recipients without an address are skipped")

	n.RecipientID = "ghost"
	assert.Error(t, ch.Deliver(ctx, n))
}

func TestEmailChannelRequiresConfiguration(t *testing.T) {
	assert.Nil(t, NewEmailChannel("", "support@example.com", nil))
	assert.Nil(t, NewEmailChannel("key", "", nil))
}

func TestWebhookChannelPostsPayload(t *testing.T) {
	received := make(chan Payload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload Payload
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL, time.Second)
	require.NoError(t, ch.Deliver(context.Background(), sampleNotification()))

	payload := <-received
	assert.Equal(t, "owner-1", payload.RecipientID)
	assert.Equal(t, "event-1", payload.EventID)
}

func TestWebhookChannelReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL, time.Second)
	err := ch.Deliver(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	assert.Nil(t, NewWebhookChannel("", 0))
}

func TestMultiJoinsChannelFailures(t *testing.T) {
	ok := &fakePublisher{}
	failing := &fakePublisher{err: errors.New("connection refused")}
	multi := NewMulti(nil, observability.NewMetrics(),
		NewRedisChannel(ok, "a"),
		nil,
		&namedChannel{name: "broken", Channel: NewRedisChannel(failing, "b")},
	)
	assert.Equal(t, []string{"redis", "broken"}, multi.Names())

	err := multi.Deliver(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, "a:owner-1", ok.channel, "healthy channels still deliver")
}

type namedChannel struct {
	Channel
	name string
}

func (c *namedChannel) Name() string { return c.name }

func TestSummary(t *testing.T) {
	n := sampleNotification()
	n.Kind = domain.EventNewReply
	assert.Equal(t, "New reply on: Printer on fire", Summary(n))
	n.Kind = domain.EventNewTicket
	assert.Equal(t, "New ticket: Printer on fire", Summary(n))
}
