package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/observability"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/security"
	"github.com/kitchenops/sessionbridge/internal/store"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

// AuthState is the coarse lifecycle state of the auth service.
type AuthState string

const (
	StateUninitialized AuthState = "uninitialized"
	StateInitializing  AuthState = "initializing"
	StateReady         AuthState = "ready"
	StateSigningIn     AuthState = "signing_in"
	StateError         AuthState = "error"
)

// AuthService orchestrates initialize, sign-in and sign-out, and owns the
// refresh ticker lifecycle. On any ambiguity about session validity it fails
// closed: storage is cleared and both stores end signed out.
type AuthService struct {
	provider  provider.Client
	factory   *SessionFactory
	validator *SessionValidator
	tokens    tokenstore.Store
	sessions  *store.SessionStore
	legacy    *store.LegacyStore
	logger    *slog.Logger

	refreshInterval time.Duration
	initGroup       singleflight.Group

	mu           sync.Mutex
	state        AuthState
	initialized  bool
	initInFlight bool
	generation   int
	stopRefresh  func()
	unsubscribe  func()
}

func NewAuthService(
	client provider.Client,
	factory *SessionFactory,
	validator *SessionValidator,
	tokens tokenstore.Store,
	sessions *store.SessionStore,
	legacy *store.LegacyStore,
	refreshInterval time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthService{
		provider:        client,
		factory:         factory,
		validator:       validator,
		tokens:          tokens,
		sessions:        sessions,
		legacy:          legacy,
		refreshInterval: refreshInterval,
		logger:          logger,
		state:           StateUninitialized,
	}
	s.unsubscribe = client.OnAuthStateChange(s.handleAuthEvent)
	return s
}

// State returns the current lifecycle state.
func (s *AuthService) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether a successful Initialize or SignIn completed.
func (s *AuthService) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Initialize restores a persisted session if one exists and is still live.
// Concurrent calls collapse into a single attempt. Liveness is confirmed by
// an explicit refresh, never by reusing the stored token as-is. A missing or
// dead session is not an error: the service comes up signed out and the
// routing guard keeps unauthenticated traffic on the public routes.
func (s *AuthService) Initialize(ctx context.Context) error {
	_, err, _ := s.initGroup.Do("initialize", func() (any, error) {
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *AuthService) initialize(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateInitializing
	s.initInFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.initInFlight = false
		s.mu.Unlock()
	}()

	s.sessions.SetLoading(true)

	if _, ok := s.tokens.GetRaw(ctx, tokenstore.RawRefreshTokenSlot); !ok {
		s.logger.InfoContext(ctx, "no persisted session; starting signed out")
		s.teardown(ctx, StateReady, nil)
		return nil
	}

	sess, err := s.validator.Refresh(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "persisted session is not live; failing closed", "error", err)
		s.teardown(ctx, StateReady, nil)
		return nil
	}

	s.mu.Lock()
	s.initialized = true
	s.state = StateReady
	s.startRefreshLocked()
	s.mu.Unlock()
	s.publish(sess)
	s.logger.InfoContext(ctx, "session restored", "user_id", sess.User.ID)
	return nil
}

// SignIn authenticates with the provider, builds a session and starts the
// refresh ticker. Every failure surfaces as the same generic
// invalid-credentials error; the underlying cause is only logged.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)

	s.mu.Lock()
	s.state = StateSigningIn
	s.mu.Unlock()

	remote, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil || remote == nil || remote.AccessToken == "" {
		s.logger.WarnContext(ctx, "sign-in rejected", "email", email, "error", err)
		observability.RecordSignIn("password", "failure")
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		return nil, autherr.ErrInvalidCredentials
	}

	sess, err := s.establish(ctx, remote)
	if err != nil {
		s.logger.ErrorContext(ctx, "session build after sign-in failed",
			"user_id", remote.User.ID, "error", err)
		observability.RecordSignIn("password", "failure")
		s.teardown(ctx, StateError, nil)
		return nil, autherr.ErrInvalidCredentials
	}
	observability.RecordSignIn("password", "success")
	s.logger.InfoContext(ctx, "signed in",
		"user_id", sess.User.ID, "token_fp", security.Fingerprint(remote.AccessToken))
	return sess, nil
}

// Establish installs a provider session obtained out of band (OAuth code
// exchange) using the same path as password sign-in.
func (s *AuthService) Establish(ctx context.Context, remote *provider.Session) (*domain.Session, error) {
	if remote == nil || remote.AccessToken == "" {
		return nil, autherr.Session("session.establish", errors.New("provider returned no session"))
	}
	sess, err := s.establish(ctx, remote)
	if err != nil {
		observability.RecordSignIn("oauth", "failure")
		s.teardown(ctx, StateError, nil)
		return nil, err
	}
	observability.RecordSignIn("oauth", "success")
	return sess, nil
}

func (s *AuthService) establish(ctx context.Context, remote *provider.Session) (*domain.Session, error) {
	if err := persistRawTokens(ctx, s.tokens, remote); err != nil {
		return nil, err
	}
	sess, err := s.factory.Build(ctx, remote.User)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.initialized = true
	s.state = StateReady
	s.startRefreshLocked()
	s.mu.Unlock()
	s.publish(sess)
	return sess, nil
}

// SignOut stops the refresh ticker, best-effort signs out remotely and
// clears local state. The ticker is cancelled before storage is cleared so
// an in-flight refresh cannot repopulate it. Remote failures are swallowed:
// local state always ends signed out.
func (s *AuthService) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	if s.stopRefresh != nil {
		s.stopRefresh()
		s.stopRefresh = nil
	}
	s.initialized = false
	s.state = StateUninitialized
	s.mu.Unlock()

	accessToken, hasToken := s.tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot)
	if hasToken {
		if err := s.provider.SignOut(ctx, accessToken); err != nil {
			s.logger.WarnContext(ctx, "remote sign-out failed; clearing local state anyway", "error", err)
			observability.RecordSignOut("remote_failure")
		} else {
			observability.RecordSignOut("success")
		}
	} else {
		observability.RecordSignOut("no_token")
	}

	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "token storage clear failed", "error", err)
	}
	s.sessions.Reset()
	s.legacy.Reset()
}

// Close detaches the provider listener and stops the refresh ticker. Local
// state is left as-is; this is process shutdown, not sign-out.
func (s *AuthService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.stopRefresh != nil {
		s.stopRefresh()
		s.stopRefresh = nil
	}
}

// startRefreshLocked replaces any running refresh loop. Caller holds mu.
func (s *AuthService) startRefreshLocked() {
	if s.stopRefresh != nil {
		s.stopRefresh()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.stopRefresh = cancel
	go s.runRefreshLoop(ctx, gen)
}

func (s *AuthService) sameGeneration(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *AuthService) runRefreshLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.sameGeneration(gen) {
			return
		}
		sess, err := s.validator.Refresh(ctx)
		if !s.sameGeneration(gen) {
			// Sign-out won the race. Drop the result and re-clear anything
			// the refresh may have persisted after the clear.
			if err == nil {
				if cerr := s.tokens.Clear(context.Background()); cerr != nil {
					s.logger.Error("post-sign-out token clear failed", "error", cerr)
				}
			}
			return
		}
		if err != nil {
			s.logger.Warn("session refresh failed; tearing down session", "error", err)
			s.teardown(context.Background(), StateError, err)
			return
		}
		s.publish(sess)
	}
}

// handleAuthEvent reacts to provider-side auth state changes. Events are
// ignored while Initialize is in flight so startup never double-processes a
// rotation it triggered itself. A rotation observed while signed out is
// discarded, and a rebuild that a sign-out overtakes is dropped on the
// generation check: sign-out stays final either way.
func (s *AuthService) handleAuthEvent(event provider.AuthEvent, remote *provider.Session) {
	s.mu.Lock()
	inFlight := s.initInFlight
	active := s.initialized
	gen := s.generation
	s.mu.Unlock()
	if inFlight {
		s.logger.Debug("ignoring auth event during initialization", "event", string(event))
		return
	}

	ctx := context.Background()
	switch event {
	case provider.EventSignedOut:
		s.teardown(ctx, StateUninitialized, nil)
	case provider.EventSignedIn, provider.EventTokenRefreshed:
		if remote == nil || remote.AccessToken == "" {
			return
		}
		if event == provider.EventTokenRefreshed && !active {
			// A rotation can only extend an existing session.
			s.logger.Debug("discarding token rotation while signed out")
			return
		}
		if err := persistRawTokens(ctx, s.tokens, remote); err != nil {
			s.logger.Error("persisting rotated tokens failed", "error", err)
			return
		}
		sess, err := s.factory.Build(ctx, remote.User)
		if err != nil {
			s.logger.Warn("session rebuild on auth event failed", "event", string(event), "error", err)
			return
		}
		if !s.sameGeneration(gen) {
			// Sign-out won the race while the rebuild was in flight. Drop the
			// result and re-clear anything persisted after the clear.
			if cerr := s.tokens.Clear(ctx); cerr != nil {
				s.logger.Error("post-sign-out token clear failed", "error", cerr)
			}
			return
		}
		s.publish(sess)
	}
}

// teardown cancels the refresh loop, clears storage and forces both stores
// to signed out. With a non-nil cause the error is recorded on the stores.
func (s *AuthService) teardown(ctx context.Context, state AuthState, cause error) {
	s.mu.Lock()
	s.generation++
	if s.stopRefresh != nil {
		s.stopRefresh()
		s.stopRefresh = nil
	}
	s.initialized = false
	s.state = state
	s.mu.Unlock()

	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "token storage clear failed", "error", err)
	}
	if cause != nil {
		s.sessions.Fail(cause)
		s.legacy.Fail(cause)
	} else {
		s.sessions.Reset()
		s.legacy.Reset()
	}
}

func (s *AuthService) publish(sess *domain.Session) {
	s.sessions.SetSession(sess)
	s.legacy.Apply(store.LegacyFromSession(sess))
}
