package tokenstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

// RedisStore persists records in Redis under the namespace prefix. A side
// index set tracks every namespaced key so Clear can enumerate them without
// a SCAN. Redis TTLs are set slightly past the record expiry as a backstop;
// the record expiry remains the authority so clock decisions stay local.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	maxAge time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, maxAge time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "backoffice_auth"
	}
	return &RedisStore{client: client, prefix: prefix, maxAge: maxAge, now: time.Now}
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	rec, err := newRecord(value, s.now().UTC(), s.maxAge)
	if err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "set", "error")
		return autherr.Storage("token_store.set", err)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "set", "error")
		return autherr.Storage("token_store.set", err)
	}
	full := s.namespaced(key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, full, payload, s.maxAge+time.Minute)
	pipe.SAdd(ctx, s.indexKey(), full)
	pipe.Expire(ctx, s.indexKey(), s.maxAge+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "set", "error")
		return autherr.Storage("token_store.set", err)
	}
	observability.RecordTokenStoreOperation(ctx, "redis", "set", "success")
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	full := s.namespaced(key)
	payload, err := s.client.Get(ctx, full).Bytes()
	if err == redis.Nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "get", "miss")
		return nil, false
	}
	if err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "get", "error")
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.evict(ctx, full)
		observability.RecordTokenStoreOperation(ctx, "redis", "get", "corrupt")
		return nil, false
	}
	if rec.expired(s.now().UTC()) {
		s.evict(ctx, full)
		observability.RecordTokenStoreOperation(ctx, "redis", "get", "expired")
		return nil, false
	}
	observability.RecordTokenStoreOperation(ctx, "redis", "get", "hit")
	return rec.Value, true
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	s.evict(ctx, s.namespaced(key))
	observability.RecordTokenStoreOperation(ctx, "redis", "remove", "success")
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "clear", "error")
		return autherr.Storage("token_store.clear", err)
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, s.indexKey())
	pipe.Del(ctx, RawAccessTokenSlot, RawRefreshTokenSlot)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "clear", "error")
		return autherr.Storage("token_store.clear", err)
	}
	observability.RecordTokenStoreOperation(ctx, "redis", "clear", "success")
	return nil
}

func (s *RedisStore) SetRaw(ctx context.Context, slot, token string) error {
	if err := s.client.Set(ctx, slot, token, s.maxAge+time.Minute).Err(); err != nil {
		observability.RecordTokenStoreOperation(ctx, "redis", "set_raw", "error")
		return autherr.Token("token_store.set_raw", err)
	}
	observability.RecordTokenStoreOperation(ctx, "redis", "set_raw", "success")
	return nil
}

func (s *RedisStore) GetRaw(ctx context.Context, slot string) (string, bool) {
	token, err := s.client.Get(ctx, slot).Result()
	if err != nil {
		status := "miss"
		if err != redis.Nil {
			status = "error"
		}
		observability.RecordTokenStoreOperation(ctx, "redis", "get_raw", status)
		return "", false
	}
	observability.RecordTokenStoreOperation(ctx, "redis", "get_raw", "hit")
	return token, true
}

func (s *RedisStore) evict(ctx context.Context, fullKey string) {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, fullKey)
	pipe.SRem(ctx, s.indexKey(), fullKey)
	_, _ = pipe.Exec(ctx)
}

func (s *RedisStore) namespaced(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}
