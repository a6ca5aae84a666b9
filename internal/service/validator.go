package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/observability"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/security"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

// SessionValidator checks a held session against remote truth and performs
// token rotation. Refresh rebuilds the session in full through the factory;
// it never patches fields in place.
type SessionValidator struct {
	provider provider.Client
	factory  *SessionFactory
	tokens   tokenstore.Store
	logger   *slog.Logger
}

func NewSessionValidator(client provider.Client, factory *SessionFactory, tokens tokenstore.Store, logger *slog.Logger) *SessionValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionValidator{provider: client, factory: factory, tokens: tokens, logger: logger}
}

// Validate reports whether the session still corresponds to a live remote
// user with the same id. It never returns an error; any failure reads as a
// stale session.
func (v *SessionValidator) Validate(ctx context.Context, sess *domain.Session) bool {
	if sess == nil {
		return false
	}
	token, ok := v.tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot)
	if !ok {
		return false
	}
	user, err := v.provider.GetUser(ctx, token)
	if err != nil || user == nil {
		return false
	}
	return user.ID == sess.User.ID
}

// Refresh rotates the provider tokens and rebuilds the session. The rotated
// token pair is persisted before the rebuild so a rebuild failure never
// strands a consumed refresh token.
func (v *SessionValidator) Refresh(ctx context.Context) (*domain.Session, error) {
	refreshToken, ok := v.tokens.GetRaw(ctx, tokenstore.RawRefreshTokenSlot)
	if !ok {
		observability.RecordSessionRefresh("no_token")
		return nil, autherr.Session("session.refresh", errors.New("no refresh token held"))
	}
	remote, err := v.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		observability.RecordSessionRefresh("failure")
		return nil, autherr.Session("session.refresh", err)
	}
	if remote == nil || remote.AccessToken == "" {
		observability.RecordSessionRefresh("failure")
		return nil, autherr.Session("session.refresh", errors.New("provider returned no session"))
	}
	if err := persistRawTokens(ctx, v.tokens, remote); err != nil {
		observability.RecordSessionRefresh("failure")
		return nil, err
	}
	sess, err := v.factory.Build(ctx, remote.User)
	if err != nil {
		observability.RecordSessionRefresh("failure")
		return nil, err
	}
	observability.RecordSessionRefresh("success")
	v.logger.DebugContext(ctx, "session refreshed",
		"user_id", sess.User.ID, "token_fp", security.Fingerprint(remote.AccessToken))
	return sess, nil
}

// persistRawTokens writes the rotated token pair into the raw slots. The
// store impls classify their own failures as token-kind errors.
func persistRawTokens(ctx context.Context, tokens tokenstore.Store, remote *provider.Session) error {
	if err := tokens.SetRaw(ctx, tokenstore.RawAccessTokenSlot, remote.AccessToken); err != nil {
		return err
	}
	return tokens.SetRaw(ctx, tokenstore.RawRefreshTokenSlot, remote.RefreshToken)
}
