package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kitchenops/sessionbridge/internal/security"
)

// AbsenceCache remembers which users are known to have no membership or
// profile row, so every session rebuild does not re-run the same empty
// directory queries. Entries are TTL-bounded; a user gaining a row becomes
// visible once the entry lapses or the entity is invalidated.
type AbsenceCache interface {
	Hit(ctx context.Context, entity, userID string) (bool, error)
	Mark(ctx context.Context, entity, userID string, ttl time.Duration) error
	Invalidate(ctx context.Context, entity string) error
}

// NoopAbsenceCache disables absence caching; every lookup hits the database.
type NoopAbsenceCache struct{}

func (NoopAbsenceCache) Hit(context.Context, string, string) (bool, error) { return false, nil }
func (NoopAbsenceCache) Mark(context.Context, string, string, time.Duration) error {
	return nil
}
func (NoopAbsenceCache) Invalidate(context.Context, string) error { return nil }

// InMemoryAbsenceCache is the single-process default.
type InMemoryAbsenceCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]time.Time
}

func NewInMemoryAbsenceCache() *InMemoryAbsenceCache {
	return &InMemoryAbsenceCache{entries: make(map[string]map[string]time.Time)}
}

func (c *InMemoryAbsenceCache) Hit(_ context.Context, entity, userID string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	byEntity, ok := c.entries[entity]
	if !ok {
		c.mu.RUnlock()
		return false, nil
	}
	expiresAt, ok := byEntity[userID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		if byEntity, ok := c.entries[entity]; ok {
			delete(byEntity, userID)
			if len(byEntity) == 0 {
				delete(c.entries, entity)
			}
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryAbsenceCache) Mark(_ context.Context, entity, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byEntity, ok := c.entries[entity]
	if !ok {
		byEntity = make(map[string]time.Time)
		c.entries[entity] = byEntity
	}
	byEntity[userID] = time.Now().UTC().Add(ttl)
	return nil
}

func (c *InMemoryAbsenceCache) Invalidate(_ context.Context, entity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entity)
	return nil
}

// RedisAbsenceCache shares absence knowledge across replicas. Each entity
// keeps a set of its data keys so Invalidate can drop them in one pass.
type RedisAbsenceCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAbsenceCache(client redis.UniversalClient, prefix string) *RedisAbsenceCache {
	if prefix == "" {
		prefix = "directory_absence"
	}
	return &RedisAbsenceCache{client: client, prefix: prefix}
}

func (c *RedisAbsenceCache) Hit(ctx context.Context, entity, userID string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.dataKey(entity, userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisAbsenceCache) Mark(ctx context.Context, entity, userID string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	dataKey := c.dataKey(entity, userID)
	indexKey := c.indexKey(entity)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dataKey, "1", ttl)
	pipe.SAdd(ctx, indexKey, dataKey)
	pipe.Expire(ctx, indexKey, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisAbsenceCache) Invalidate(ctx context.Context, entity string) error {
	if c.client == nil {
		return nil
	}
	indexKey := c.indexKey(entity)
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := c.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisAbsenceCache) dataKey(entity, userID string) string {
	return fmt.Sprintf("%s:data:%s:%s", c.prefix, normalizeEntity(entity), security.Fingerprint(userID))
}

func (c *RedisAbsenceCache) indexKey(entity string) string {
	return fmt.Sprintf("%s:index:%s", c.prefix, normalizeEntity(entity))
}

func normalizeEntity(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity))
}
