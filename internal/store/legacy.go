package store

import (
	"sync"

	"github.com/kitchenops/sessionbridge/internal/domain"
)

// LegacyState is the flat session shape the pre-migration consumers read:
// the user reference plus the already-derived org and access flags.
type LegacyState struct {
	User           *domain.User
	OrganizationID string
	IsDev          bool
	HasAdminAccess bool
	Err            error
}

// SignedIn reports whether the snapshot holds a user.
func (s LegacyState) SignedIn() bool {
	return s.User != nil
}

// LegacyFromSession flattens a session into the legacy shape.
func LegacyFromSession(sess *domain.Session) LegacyState {
	if sess == nil {
		return LegacyState{}
	}
	user := sess.User
	return LegacyState{
		User:           &user,
		OrganizationID: sess.OrganizationID,
		IsDev:          sess.IsDev,
		HasAdminAccess: sess.HasAdminAccess,
	}
}

// LegacyStore mirrors SessionStore for the flat shape. It exists only so the
// bridge has a second side to reconcile; new code reads SessionStore.
type LegacyStore struct {
	mu     sync.RWMutex
	state  LegacyState
	subs   map[int]func(LegacyState)
	nextID int
}

func NewLegacyStore() *LegacyStore {
	return &LegacyStore{subs: make(map[int]func(LegacyState))}
}

func (s *LegacyStore) Snapshot() LegacyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Apply installs a full state, clearing whatever was there before.
func (s *LegacyStore) Apply(next LegacyState) {
	s.mu.Lock()
	s.state = next
	subs := s.snapshotSubs()
	s.mu.Unlock()
	notify(subs, next)
}

// Reset forces the canonical signed-out shape.
func (s *LegacyStore) Reset() {
	s.Apply(LegacyState{})
}

// Fail forces the signed-out shape while recording the error.
func (s *LegacyStore) Fail(err error) {
	s.Apply(LegacyState{Err: err})
}

func (s *LegacyStore) Subscribe(fn func(LegacyState)) func() {
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

func (s *LegacyStore) snapshotSubs() []func(LegacyState) {
	out := make([]func(LegacyState), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
