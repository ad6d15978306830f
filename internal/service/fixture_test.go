package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

func org(id string) *string { return &id }

var (
	alice = domain.Actor{ID: "alice", Role: domain.RoleEndUser, OrganizationID: org("acme"), Email: "alice@acme.test"}
	bob   = domain.Actor{ID: "bob", Role: domain.RoleEndUser, OrganizationID: org("acme")}
	carol = domain.Actor{ID: "carol", Role: domain.RoleOrgAdmin, OrganizationID: org("acme")}
	dave  = domain.Actor{ID: "dave", Role: domain.RoleOrgAdmin, OrganizationID: org("acme")}
	erin  = domain.Actor{ID: "erin", Role: domain.RoleOrgAdmin, OrganizationID: org("globex")}
	root  = domain.Actor{ID: "root", Role: domain.RoleSuperAdmin}
	frank = domain.Actor{ID: "frank", Role: domain.RoleEndUser}
)

var allActors = []domain.Actor{alice, bob, carol, dave, erin, root, frank}

// stepClock advances one second per reading so every write gets a
// distinct timestamp.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingDeliverer struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *recordingDeliverer) Deliver(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

func (r *recordingDeliverer) count(recipientID string, kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.RecipientID == recipientID && item.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	store     *repository.MemoryStore
	support   *Support
	delivered *recordingDeliverer
}

type fixtureOption func(*Dependencies)

func allowReplyOnClosed(deps *Dependencies) { deps.AllowReplyOnClosed = true }

func withoutDispatcher(deps *Dependencies) { deps.Dispatcher = nil }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	for i := range allActors {
		actor := allActors[i]
		require.NoError(t, store.Actors().Upsert(ctx, &actor))
	}
	delivered := &recordingDeliverer{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	deps := Dependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Delivery:   delivered,
		Now:        newStepClock().Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	support := NewSupport(deps)
	support.Fanout.RegisterHandlers(deps.Dispatcher)
	return &fixture{store: store, support: support, delivered: delivered}
}

func (f *fixture) createTicket(t *testing.T, owner domain.Actor) *domain.Ticket {
	t.Helper()
	ticket, err := f.support.Tickets.CreateTicket(context.Background(), owner, TicketCreateInput{
		Subject:     "Register offline",
		Description: "Store 12 cannot reach the POS backend",
		Category:    domain.TicketCategoryTechnical,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) unread(t *testing.T, recipient domain.Actor, kind domain.EventKind) []domain.Notification {
	t.Helper()
	inbox, err := f.support.Notifications.Inbox(context.Background(), recipient.ID, true, 200, 0)
	require.NoError(t, err)
	out := []domain.Notification{}
	for _, n := range inbox {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.support.Tickets.Get(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

func errorField(err error) any {
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		return nil
	}
	return domainErr.Details["field"]
}
