package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/support-core/internal/domain"
)

type unreadKey struct {
	recipientID string
	ticketID    string
	kind        domain.EventKind
}

// memoryState is one consistent snapshot. Committed snapshots are never
// mutated; a transaction works on a clone and swaps it in on commit.
type memoryState struct {
	tickets       map[string]domain.Ticket
	replies       map[string][]domain.Reply
	notifications map[string]domain.Notification
	unread        map[unreadKey]string
	events        []domain.TicketEvent
	seq           int64
	actors        map[string]domain.Actor
}

func newMemoryState() *memoryState {
	return &memoryState{
		tickets:       map[string]domain.Ticket{},
		replies:       map[string][]domain.Reply{},
		notifications: map[string]domain.Notification{},
		unread:        map[unreadKey]string{},
		actors:        map[string]domain.Actor{},
	}
}

func (s *memoryState) clone() *memoryState {
	replies := make(map[string][]domain.Reply, len(s.replies))
	for k, v := range s.replies {
		replies[k] = slices.Clone(v)
	}
	return &memoryState{
		tickets:       maps.Clone(s.tickets),
		replies:       replies,
		notifications: maps.Clone(s.notifications),
		unread:        maps.Clone(s.unread),
		events:        slices.Clone(s.events),
		seq:           s.seq,
		actors:        maps.Clone(s.actors),
	}
}

type memoryShared struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	state  *memoryState
	faults []error
}

// MemoryStore is a Store kept in process memory. Transactions are
// serialized and applied atomically; readers see either all of a
// transaction or none of it. It backs tests and DSN-less development runs.
type MemoryStore struct {
	shared *memoryShared
	tx     *memoryState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shared: &memoryShared{state: newMemoryState()}}
}

// FailNextTx makes the next WithinTx calls fail with errs, one per call, before running.
func (s *MemoryStore) FailNextTx(errs ...error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.faults = append(s.shared.faults, errs...)
}

func (s *MemoryStore) takeFault() error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if len(s.shared.faults) == 0 {
		return nil
	}
	err := s.shared.faults[0]
	s.shared.faults = s.shared.faults[1:]
	return err
}

func (s *MemoryStore) Tickets() TicketRepository             { return memoryTickets{s} }
func (s *MemoryStore) Replies() ReplyRepository              { return memoryReplies{s} }
func (s *MemoryStore) Notifications() NotificationRepository { return memoryNotifications{s} }
func (s *MemoryStore) Events() EventRepository               { return memoryEvents{s} }
func (s *MemoryStore) Actors() ActorDirectory                { return memoryActors{s} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.takeFault(); err != nil {
		return err
	}

	s.shared.txMu.Lock()
	defer s.shared.txMu.Unlock()

	s.shared.mu.RLock()
	working := s.shared.state.clone()
	s.shared.mu.RUnlock()

	if err := fn(&MemoryStore{shared: s.shared, tx: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.shared.mu.Lock()
	s.shared.state = working
	s.shared.mu.Unlock()
	return nil
}

func (s *MemoryStore) read(fn func(st *memoryState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.shared.mu.RLock()
	defer s.shared.mu.RUnlock()
	return fn(s.shared.state)
}

func (s *MemoryStore) write(ctx context.Context, fn func(st *memoryState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.WithinTx(ctx, func(tx Store) error {
		return fn(tx.(*MemoryStore).tx)
	})
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.write(ctx, func(st *memoryState) error {
		st.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (r memoryTickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.write(ctx, func(st *memoryState) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return ErrNotFound
		}
		current.Status = ticket.Status
		current.Priority = ticket.Priority
		current.UpdatedAt = ticket.UpdatedAt
		st.tickets[ticket.ID] = current
		return nil
	})
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.read(func(st *memoryState) error {
		t, ok := st.tickets[id]
		if !ok {
			return ErrNotFound
		}
		out = cloneTicket(t)
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: memory transactions are already serialized.
func (r memoryTickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r memoryTickets) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	err := r.s.read(func(st *memoryState) error {
		for _, t := range st.tickets {
			if matchTicket(t, filter) {
				result = append(result, *cloneTicket(t))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, clampLimit(filter.Limit, 50, 200), filter.Offset), nil
}

func matchTicket(t domain.Ticket, filter TicketFilter) bool {
	if filter.OwnerID != nil && t.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.OrganizationID != nil && !t.InOrganization(filter.OrganizationID) {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !slices.Contains(filter.Priorities, t.Priority) {
		return false
	}
	if len(filter.Categories) > 0 && !slices.Contains(filter.Categories, t.Category) {
		return false
	}
	return true
}

func cloneTicket(t domain.Ticket) *domain.Ticket {
	if t.OrganizationID != nil {
		org := *t.OrganizationID
		t.OrganizationID = &org
	}
	return &t
}

type memoryReplies struct{ s *MemoryStore }

func (r memoryReplies) Create(ctx context.Context, reply *domain.Reply) error {
	return r.s.write(ctx, func(st *memoryState) error {
		if _, ok := st.tickets[reply.TicketID]; !ok {
			return ErrNotFound
		}
		thread := append(st.replies[reply.TicketID], *reply)
		sort.SliceStable(thread, func(i, j int) bool { return thread[i].Before(thread[j]) })
		st.replies[reply.TicketID] = thread
		return nil
	})
}

func (r memoryReplies) ListByTicket(_ context.Context, ticketID string) ([]domain.Reply, error) {
	var out []domain.Reply
	err := r.s.read(func(st *memoryState) error {
		out = slices.Clone(st.replies[ticketID])
		return nil
	})
	if out == nil {
		out = []domain.Reply{}
	}
	return out, err
}

type memoryNotifications struct{ s *MemoryStore }

func (r memoryNotifications) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	folded := false
	err := r.s.write(ctx, func(st *memoryState) error {
		key := unreadKey{recipientID: n.RecipientID, ticketID: n.TicketID, kind: n.Kind}
		if existingID, ok := st.unread[key]; ok {
			existing := st.notifications[existingID]
			existing.CreatedAt = n.CreatedAt
			existing.Metadata = maps.Clone(n.Metadata)
			existing.EventID = n.EventID
			st.notifications[existingID] = existing
			n.ID = existingID
			folded = true
			return nil
		}
		stored := *n
		stored.Metadata = maps.Clone(n.Metadata)
		stored.Read = false
		stored.ReadAt = nil
		st.notifications[n.ID] = stored
		st.unread[key] = n.ID
		return nil
	})
	return folded, err
}

func (r memoryNotifications) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	var out *domain.Notification
	err := r.s.read(func(st *memoryState) error {
		n, ok := st.notifications[id]
		if !ok {
			return ErrNotFound
		}
		out = cloneNotification(n)
		return nil
	})
	return out, err
}

func (r memoryNotifications) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.s.write(ctx, func(st *memoryState) error {
		n, ok := st.notifications[id]
		if !ok || n.Read {
			return nil
		}
		markRead(st, n, at)
		return nil
	})
}

func (r memoryNotifications) MarkAllReadForTicket(ctx context.Context, ticketID, recipientID string, seenUpTo, at time.Time) (int64, error) {
	var count int64
	err := r.s.write(ctx, func(st *memoryState) error {
		for _, n := range st.notifications {
			if n.Read || n.TicketID != ticketID || n.RecipientID != recipientID || n.CreatedAt.After(seenUpTo) {
				continue
			}
			markRead(st, n, at)
			count++
		}
		return nil
	})
	return count, err
}

func markRead(st *memoryState, n domain.Notification, at time.Time) {
	readAt := at
	n.Read = true
	n.ReadAt = &readAt
	st.notifications[n.ID] = n
	delete(st.unread, unreadKey{recipientID: n.RecipientID, ticketID: n.TicketID, kind: n.Kind})
}

func (r memoryNotifications) CountUnread(_ context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.s.read(func(st *memoryState) error {
		for key := range st.unread {
			if key.recipientID == recipientID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r memoryNotifications) HasUnreadForTicket(_ context.Context, ticketID, recipientID string) (bool, error) {
	found := false
	err := r.s.read(func(st *memoryState) error {
		for key := range st.unread {
			if key.recipientID == recipientID && key.ticketID == ticketID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r memoryNotifications) List(_ context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	result := []domain.Notification{}
	err := r.s.read(func(st *memoryState) error {
		for _, n := range st.notifications {
			if n.RecipientID != filter.RecipientID {
				continue
			}
			if filter.TicketID != nil && n.TicketID != *filter.TicketID {
				continue
			}
			if filter.UnreadOnly && n.Read {
				continue
			}
			result = append(result, *cloneNotification(n))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, clampLimit(filter.Limit, 50, 200), filter.Offset), nil
}

func cloneNotification(n domain.Notification) *domain.Notification {
	n.Metadata = maps.Clone(n.Metadata)
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return &n
}

type memoryEvents struct{ s *MemoryStore }

func (r memoryEvents) Append(ctx context.Context, event *domain.TicketEvent) error {
	return r.s.write(ctx, func(st *memoryState) error {
		st.seq++
		event.Seq = st.seq
		st.events = append(st.events, *event)
		return nil
	})
}

// LockTicket is a no-op: memory transactions are already serialized.
func (r memoryEvents) LockTicket(context.Context, string) error {
	return nil
}

func (r memoryEvents) ListPending(_ context.Context, ticketID string) ([]domain.TicketEvent, error) {
	result := []domain.TicketEvent{}
	err := r.s.read(func(st *memoryState) error {
		for _, e := range st.events {
			if e.TicketID == ticketID && e.Pending() {
				result = append(result, e)
			}
		}
		return nil
	})
	return result, err
}

func (r memoryEvents) PendingTickets(_ context.Context, limit int) ([]string, error) {
	limit = clampLimit(limit, 100, 1000)
	result := []string{}
	err := r.s.read(func(st *memoryState) error {
		seen := map[string]struct{}{}
		for _, e := range st.events {
			if !e.Pending() {
				continue
			}
			if _, ok := seen[e.TicketID]; ok {
				continue
			}
			seen[e.TicketID] = struct{}{}
			result = append(result, e.TicketID)
			if len(result) == limit {
				return nil
			}
		}
		return nil
	})
	return result, err
}

func (r memoryEvents) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return r.s.write(ctx, func(st *memoryState) error {
		for i := range st.events {
			if st.events[i].ID == eventID && st.events[i].Pending() {
				processed := at
				st.events[i].ProcessedAt = &processed
				return nil
			}
		}
		return ErrNotFound
	})
}

type memoryActors struct{ s *MemoryStore }

func (r memoryActors) GetByID(_ context.Context, id string) (*domain.Actor, error) {
	var out *domain.Actor
	err := r.s.read(func(st *memoryState) error {
		a, ok := st.actors[id]
		if !ok {
			return ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r memoryActors) ListResponders(_ context.Context, orgID *string) ([]domain.Actor, error) {
	result := []domain.Actor{}
	err := r.s.read(func(st *memoryState) error {
		for _, a := range st.actors {
			switch {
			case orgID != nil && a.Role == domain.RoleOrgAdmin && a.OrganizationID != nil && *a.OrganizationID == *orgID:
				result = append(result, a)
			case orgID == nil && a.Role == domain.RoleSuperAdmin:
				result = append(result, a)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

func (r memoryActors) Upsert(ctx context.Context, actor *domain.Actor) error {
	return r.s.write(ctx, func(st *memoryState) error {
		st.actors[actor.ID] = *actor
		return nil
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
