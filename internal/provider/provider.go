package provider

import (
	"context"
	"time"

	"github.com/kitchenops/sessionbridge/internal/domain"
)

// Session is the provider-issued token bundle and the user it belongs to.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresIn    int         `json:"expires_in,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at,omitempty"`
	User         domain.User `json:"user"`
}

// AuthEvent mirrors the provider's auth-state change notifications.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthStateHandler receives auth-state changes. The session is nil for
// signed-out events.
type AuthStateHandler func(event AuthEvent, session *Session)

// Client is the capability surface of the remote auth provider. The core
// depends on these operations only, not on the transport behind them.
type Client interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
	UpdateUser(ctx context.Context, accessToken string, metadata map[string]any) (*domain.User, error)
	OnAuthStateChange(handler AuthStateHandler) (unsubscribe func())
}
