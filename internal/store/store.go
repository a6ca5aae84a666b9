// Package store holds the client-side session state containers. SessionStore
// is the authoritative container; LegacyStore keeps the flat shape older
// consumers still read until they migrate. The bridge package reconciles the
// two.
package store

import (
	"sync"

	"github.com/kitchenops/sessionbridge/internal/domain"
)

// State is a snapshot of the authoritative session container. A nil Session
// with a nil Err is the canonical signed-out shape.
type State struct {
	Session *domain.Session
	Loading bool
	Err     error
}

// SignedIn reports whether the snapshot holds a session.
func (s State) SignedIn() bool {
	return s.Session != nil
}

// SessionStore is a thread-safe session container with synchronous
// subscriber notification. Subscribers observe every state transition in
// order; callbacks run on the mutating goroutine and must not block.
type SessionStore struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

func NewSessionStore() *SessionStore {
	return &SessionStore{subs: make(map[int]func(State))}
}

// Snapshot returns the current state.
func (s *SessionStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetSession installs a session and clears any loading flag or prior error.
func (s *SessionStore) SetSession(sess *domain.Session) {
	s.apply(State{Session: sess})
}

// SetLoading flags an in-flight transition without touching the session.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	next := s.state
	next.Loading = loading
	s.state = next
	subs := s.snapshotSubs()
	s.mu.Unlock()
	notify(subs, next)
}

// Reset forces the canonical signed-out shape.
func (s *SessionStore) Reset() {
	s.apply(State{})
}

// Fail forces the signed-out shape while recording the error for the UI.
func (s *SessionStore) Fail(err error) {
	s.apply(State{Err: err})
}

// Subscribe registers fn for every subsequent state change and returns the
// unsubscribe function.
func (s *SessionStore) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SessionStore) apply(next State) {
	s.mu.Lock()
	s.state = next
	subs := s.snapshotSubs()
	s.mu.Unlock()
	notify(subs, next)
}

func (s *SessionStore) snapshotSubs() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify[T any](subs []func(T), state T) {
	for _, fn := range subs {
		fn(state)
	}
}
