package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

const (
	entityMembership = "membership"
	entityProfile    = "profile"
)

// CachedDirectory wraps a DirectoryRepository with an absence cache. Only
// not-found results are cached: a present row is cheap to read and must never
// be served stale, while the common case of a user without a profile row
// would otherwise re-query the database on every refresh tick.
type CachedDirectory struct {
	inner  DirectoryRepository
	cache  AbsenceCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(inner DirectoryRepository, cache AbsenceCache, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if cache == nil {
		cache = NoopAbsenceCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) FindMembershipByUserID(ctx context.Context, userID string) (*domain.OrgMembership, error) {
	if d.knownAbsent(ctx, entityMembership, userID) {
		return nil, nil
	}
	m, err := d.inner.FindMembershipByUserID(ctx, userID)
	if err == nil && m == nil {
		d.markAbsent(ctx, entityMembership, userID)
	}
	return m, err
}

func (d *CachedDirectory) FindProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if d.knownAbsent(ctx, entityProfile, userID) {
		return nil, nil
	}
	p, err := d.inner.FindProfileByUserID(ctx, userID)
	if err == nil && p == nil {
		d.markAbsent(ctx, entityProfile, userID)
	}
	return p, err
}

// InvalidateAbsences drops the cached not-found entries, forcing the next
// lookups back to the database. Used by the admin store-sync hatch after
// directory rows change out of band.
func (d *CachedDirectory) InvalidateAbsences(ctx context.Context) error {
	if err := d.cache.Invalidate(ctx, entityMembership); err != nil {
		return err
	}
	return d.cache.Invalidate(ctx, entityProfile)
}

// Cache faults are soft: a broken cache degrades to plain database lookups.
func (d *CachedDirectory) knownAbsent(ctx context.Context, entity, userID string) bool {
	hit, err := d.cache.Hit(ctx, entity, userID)
	if err != nil {
		d.logger.DebugContext(ctx, "absence cache read failed", "entity", entity, "error", err)
		return false
	}
	if hit {
		observability.RecordDirectoryLookup(ctx, entity, "absent_cached")
	}
	return hit
}

func (d *CachedDirectory) markAbsent(ctx context.Context, entity, userID string) {
	if err := d.cache.Mark(ctx, entity, userID, d.ttl); err != nil {
		d.logger.DebugContext(ctx, "absence cache write failed", "entity", entity, "error", err)
	}
}
