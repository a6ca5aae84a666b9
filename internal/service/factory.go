package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/repository"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

// SessionFactory builds a normalized session from a provider user reference
// plus the directory lookups, and persists it. Sessions are always rebuilt in
// full so role and metadata drift is picked up on every refresh.
type SessionFactory struct {
	directory repository.DirectoryRepository
	tokens    tokenstore.Store
	logger    *slog.Logger

	now func() time.Time
}

func NewSessionFactory(directory repository.DirectoryRepository, tokens tokenstore.Store, logger *slog.Logger) *SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFactory{
		directory: directory,
		tokens:    tokens,
		logger:    logger,
		now:       time.Now,
	}
}

// Build resolves the membership and profile rows concurrently, derives the
// organization and access flags, stamps the session and persists it under the
// session key. A lookup failure is logged and returned as a session-kind
// error; there is never a partial session.
func (f *SessionFactory) Build(ctx context.Context, user domain.User) (*domain.Session, error) {
	var (
		membership *domain.OrgMembership
		profile    *domain.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := f.directory.FindMembershipByUserID(gctx, user.ID)
		membership = m
		return err
	})
	g.Go(func() error {
		p, err := f.directory.FindProfileByUserID(gctx, user.ID)
		profile = p
		return err
	})
	if err := g.Wait(); err != nil {
		f.logger.ErrorContext(ctx, "directory lookup failed", "user_id", user.ID, "error", err)
		return nil, autherr.Session("session.build", err)
	}

	// Claims are extracted from the metadata bag exactly once, here.
	user.Claims = domain.ParseClaims(user.Metadata)

	orgID := ""
	membershipRole := ""
	if membership != nil {
		orgID = membership.OrganizationID
		membershipRole = membership.Role
	}
	if orgID == "" {
		orgID = user.Claims.OrganizationID
	}
	isDev, hasAdminAccess := domain.DeriveAccess(user.Claims, membershipRole)

	sess := &domain.Session{
		User:           user,
		OrganizationID: orgID,
		Metadata:       f.mergeMetadata(ctx, user, profile),
		IsDev:          isDev,
		HasAdminAccess: hasAdminAccess,
		LastRefreshed:  f.now().UTC(),
	}
	if err := f.tokens.Set(ctx, tokenstore.SessionKey, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// mergeMetadata overlays the extended profile record onto the provider
// metadata. Profile keys win. An undecodable profile blob is treated as
// absent; there is no invariant on metadata contents.
func (f *SessionFactory) mergeMetadata(ctx context.Context, user domain.User, profile *domain.Profile) map[string]any {
	merged := make(map[string]any, len(user.Metadata))
	for k, v := range user.Metadata {
		merged[k] = v
	}
	if profile == nil || profile.Metadata == "" {
		if len(merged) == 0 {
			return nil
		}
		return merged
	}
	var extended map[string]any
	if err := json.Unmarshal([]byte(profile.Metadata), &extended); err != nil {
		f.logger.WarnContext(ctx, "profile metadata is not a JSON object; ignoring",
			"user_id", user.ID, "error", err)
		return merged
	}
	for k, v := range extended {
		merged[k] = v
	}
	return merged
}
