package service

import "sync"

// ticketLocks is a keyed mutex. Each ticket gets its own lock, created on
// demand and dropped once nobody holds or waits for it.
type ticketLocks struct {
	mu    sync.Mutex
	locks map[string]*ticketLock
}

type ticketLock struct {
	mu   sync.Mutex
	refs int
}

func newTicketLocks() *ticketLocks {
	return &ticketLocks{locks: make(map[string]*ticketLock)}
}

// lock blocks until the ticket's lock is held and returns its release func.
func (l *ticketLocks) lock(ticketID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[ticketID]
	if !ok {
		entry = &ticketLock{}
		l.locks[ticketID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, ticketID)
		}
		l.mu.Unlock()
	}
}

// with runs fn while holding the ticket's lock. The lock is released even
// if fn panics.
func (l *ticketLocks) with(ticketID string, fn func() error) error {
	unlock := l.lock(ticketID)
	defer unlock()
	return fn()
}

func (l *ticketLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
