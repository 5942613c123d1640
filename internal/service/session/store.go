// Package session keeps per-browser conversation state in memory, keyed by a
// random identifier carried in a cookie.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session identifier.
const CookieName = "anima_session"

// IdleTimeout is how long an untouched session survives.
const IdleTimeout = 24 * time.Hour

type entry[T any] struct {
	mu       sync.Mutex
	value    *T
	lastSeen time.Time
}

// Store holds one value of type T per session.
type Store[T any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[T]
	newFn      func() *T
	now        func() time.Time
	idle       time.Duration
	maxEntries int // 0 means unbounded
}

// NewStore creates a store that seeds new sessions with newFn.
func NewStore[T any](newFn func() *T) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		newFn:   newFn,
		now:     time.Now,
		idle:    IdleTimeout,
	}
}

// Limit bounds the store to maxEntries sessions, evicting the least recently
// used one to admit a new session, and drops sessions idle for longer than idle.
func (s *Store[T]) Limit(maxEntries int, idle time.Duration) *Store[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxEntries = maxEntries
	if idle > 0 {
		s.idle = idle
	}
	return s
}

// evictOldest removes the least recently used session. Callers hold s.mu.
func (s *Store[T]) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.entries {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	delete(s.entries, oldestID)
}

// With runs fn with exclusive access to the session's value, creating and
// seeding it first if needed.
func (s *Store[T]) With(id string, fn func(*T) error) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
			s.evictOldest()
		}
		e = &entry[T]{value: s.newFn()}
		s.entries[id] = e
	}
	e.lastSeen = s.now()
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.value)
}

// Len returns the number of live sessions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops sessions idle for longer than the store's idle timeout
// (IdleTimeout unless set by Limit) and returns how many were removed.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idle)
	removed := 0
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions on every tick until done is closed.
func (s *Store[T]) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-done:
			return
		}
	}
}

// ID returns the request's session identifier, issuing a new cookie when the
// request carries none.
func ID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
