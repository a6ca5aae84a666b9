package tokenstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

// InMemoryStore keeps records in process memory. It is the default when no
// Redis address is configured and the workhorse for tests.
type InMemoryStore struct {
	mu     sync.Mutex
	prefix string
	maxAge time.Duration
	data   map[string][]byte
	raw    map[string]string
	now    func() time.Time
}

func NewInMemoryStore(prefix string, maxAge time.Duration) *InMemoryStore {
	if prefix == "" {
		prefix = "backoffice_auth"
	}
	return &InMemoryStore{
		prefix: prefix,
		maxAge: maxAge,
		data:   make(map[string][]byte),
		raw:    make(map[string]string),
		now:    time.Now,
	}
}

func (s *InMemoryStore) Set(ctx context.Context, key string, value any) error {
	rec, err := newRecord(value, s.now().UTC(), s.maxAge)
	if err != nil {
		observability.RecordTokenStoreOperation(ctx, "memory", "set", "error")
		return autherr.Storage("token_store.set", err)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		observability.RecordTokenStoreOperation(ctx, "memory", "set", "error")
		return autherr.Storage("token_store.set", err)
	}
	s.mu.Lock()
	s.data[s.namespaced(key)] = payload
	s.mu.Unlock()
	observability.RecordTokenStoreOperation(ctx, "memory", "set", "success")
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	full := s.namespaced(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.data[full]
	if !ok {
		observability.RecordTokenStoreOperation(ctx, "memory", "get", "miss")
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		delete(s.data, full)
		observability.RecordTokenStoreOperation(ctx, "memory", "get", "corrupt")
		return nil, false
	}
	if rec.expired(s.now().UTC()) {
		delete(s.data, full)
		observability.RecordTokenStoreOperation(ctx, "memory", "get", "expired")
		return nil, false
	}
	observability.RecordTokenStoreOperation(ctx, "memory", "get", "hit")
	return rec.Value, true
}

func (s *InMemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, s.namespaced(key))
	s.mu.Unlock()
	observability.RecordTokenStoreOperation(ctx, "memory", "remove", "success")
	return nil
}

func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.data = make(map[string][]byte)
	delete(s.raw, RawAccessTokenSlot)
	delete(s.raw, RawRefreshTokenSlot)
	s.mu.Unlock()
	observability.RecordTokenStoreOperation(ctx, "memory", "clear", "success")
	return nil
}

func (s *InMemoryStore) SetRaw(ctx context.Context, slot, token string) error {
	s.mu.Lock()
	s.raw[slot] = token
	s.mu.Unlock()
	observability.RecordTokenStoreOperation(ctx, "memory", "set_raw", "success")
	return nil
}

func (s *InMemoryStore) GetRaw(ctx context.Context, slot string) (string, bool) {
	s.mu.Lock()
	token, ok := s.raw[slot]
	s.mu.Unlock()
	if !ok {
		observability.RecordTokenStoreOperation(ctx, "memory", "get_raw", "miss")
		return "", false
	}
	observability.RecordTokenStoreOperation(ctx, "memory", "get_raw", "hit")
	return token, true
}

func (s *InMemoryStore) namespaced(key string) string {
	return s.prefix + ":" + key
}
