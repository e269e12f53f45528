package session

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 30 * time.Minute

// Store keeps sessions in memory, expiring them after ttl of inactivity.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Context
	now      func() time.Time
}

// NewStore creates a Store. A non-positive ttl uses DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*Context),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new empty session.
func (s *Store) Create() *Context {
	c := New()
	s.mu.Lock()
	defer s.mu.Unlock()
	c.touch(s.now())
	s.sessions[c.ID] = c
	return c
}

// Get returns a live session and refreshes its idle timer.
func (s *Store) Get(id string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(c.LastUsed()) > s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	c.touch(now)
	return c, true
}

// Delete discards a session. It reports whether one existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len counts stored sessions, expired ones included until the next Sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many went.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, c := range s.sessions {
		if now.Sub(c.LastUsed()) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Janitor sweeps every interval until ctx is done.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
