package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/store"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

// Tests in this file run the auth service against the real HTTP provider
// client, so the synchronous auth events it emits inside each round trip are
// part of the flow, exactly as in production.

func newAuthProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	var issued atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email        string `json:"email"`
			Password     string `json:"password"`
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Query().Get("grant_type") == "password" && body.Password != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "invalid credentials"})
			return
		}
		n := issued.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("at-%d", n),
			"refresh_token": fmt.Sprintf("rt-%d", n),
			"token_type":    "bearer",
			"expires_in":    3600,
			"user": map[string]any{
				"id":            "user-1",
				"email":         "chef@example.com",
				"user_metadata": map[string]any{"organizationId": "org_1"},
			},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// gateDirectory lets a test block one membership lookup until released, so
// other calls can interleave with a session rebuild.
type gateDirectory struct {
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (d *gateDirectory) arm() (entered, release chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entered = make(chan struct{}, 1)
	d.release = make(chan struct{})
	return d.entered, d.release
}

func (d *gateDirectory) FindMembershipByUserID(_ context.Context, _ string) (*domain.OrgMembership, error) {
	d.mu.Lock()
	entered, release := d.entered, d.release
	d.entered, d.release = nil, nil
	d.mu.Unlock()
	if release != nil {
		entered <- struct{}{}
		<-release
	}
	return nil, nil
}

func (d *gateDirectory) FindProfileByUserID(_ context.Context, _ string) (*domain.Profile, error) {
	return nil, nil
}

// The provider client reports a token rotation synchronously inside the
// refresh round trip, which kicks off an event-driven session rebuild. When
// SignOut runs while that rebuild is still looking up the directory, the
// rebuild must land on the floor: both stores stay signed out and storage
// stays empty.
func TestSignOutDuringEventDrivenRebuildStaysSignedOut(t *testing.T) {
	srv := newAuthProviderServer(t)
	client := provider.NewHTTPClient(srv.URL, "public-key", 5*time.Second)
	dir := &gateDirectory{}
	tokens := tokenstore.NewInMemoryStore("test_auth", 24*time.Hour)
	factory := NewSessionFactory(dir, tokens, nil)
	validator := NewSessionValidator(client, factory, tokens, nil)
	sessions := store.NewSessionStore()
	legacy := store.NewLegacyStore()
	svc := NewAuthService(client, factory, validator, tokens, sessions, legacy, 10*time.Millisecond, nil)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, "chef@example.com", "secret"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	entered, release := dir.arm()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh tick never reached the directory")
	}

	repopulated := make(chan struct{}, 1)
	unsubscribe := sessions.Subscribe(func(st store.State) {
		if st.SignedIn() {
			select {
			case repopulated <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	svc.SignOut(ctx)
	close(release)

	// Let the released rebuild and the cancelled refresh loop drain.
	time.Sleep(200 * time.Millisecond)

	select {
	case <-repopulated:
		t.Fatal("a rebuild racing sign-out repopulated the session store")
	default:
	}
	if sessions.Snapshot().SignedIn() || legacy.Snapshot().SignedIn() {
		t.Fatal("both stores must stay signed out")
	}
	if _, ok := tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot); ok {
		t.Fatal("rotated access token survived sign-out")
	}
	if _, ok := tokens.GetRaw(ctx, tokenstore.RawRefreshTokenSlot); ok {
		t.Fatal("rotated refresh token survived sign-out")
	}
}

// Sign-in and refresh against the real client must leave the service in the
// same state the controllable fake produces, events included.
func TestSignInWithRealClientEstablishesSession(t *testing.T) {
	srv := newAuthProviderServer(t)
	client := provider.NewHTTPClient(srv.URL, "public-key", 5*time.Second)
	tokens := tokenstore.NewInMemoryStore("test_auth", 24*time.Hour)
	factory := NewSessionFactory(&gateDirectory{}, tokens, nil)
	validator := NewSessionValidator(client, factory, tokens, nil)
	sessions := store.NewSessionStore()
	legacy := store.NewLegacyStore()
	svc := NewAuthService(client, factory, validator, tokens, sessions, legacy, time.Minute, nil)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	sess, err := svc.SignIn(ctx, "chef@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.OrganizationID != "org_1" {
		t.Fatalf("expected org from claims, got %q", sess.OrganizationID)
	}
	if !sessions.Snapshot().SignedIn() || !legacy.Snapshot().SignedIn() {
		t.Fatal("both stores must hold the session")
	}
	if got, _ := tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot); got != "at-1" {
		t.Fatalf("access token not persisted, got %q", got)
	}

	svc.SignOut(ctx)
	if sessions.Snapshot().SignedIn() || legacy.Snapshot().SignedIn() {
		t.Fatal("both stores must end signed out")
	}
}
