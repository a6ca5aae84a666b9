package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/facade"
	"github.com/kitchenops/sessionbridge/internal/store"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

type stubAuth struct {
	sessions *store.SessionStore
	tokens   tokenstore.Store
	err      error
}

func (s *stubAuth) SignIn(ctx context.Context, email, _ string) (*domain.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess := &domain.Session{
		User:           domain.User{ID: "user-1", Email: email},
		OrganizationID: "org_1",
		LastRefreshed:  time.Now().UTC(),
	}
	s.sessions.SetSession(sess)
	_ = s.tokens.SetRaw(ctx, tokenstore.RawAccessTokenSlot, "raw-access-token")
	return sess, nil
}

func (s *stubAuth) SignOut(ctx context.Context) {
	_ = s.tokens.Clear(ctx)
	s.sessions.Reset()
}

type stubBridge struct {
	consistent bool
	syncErr    error
}

func (b *stubBridge) Verify(context.Context) bool { return b.consistent }
func (b *stubBridge) Sync(context.Context) error  { return b.syncErr }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newHandlerForTest(t *testing.T, auth *stubAuth, bridge *stubBridge) (*AuthHandler, *store.SessionStore, tokenstore.Store) {
	t.Helper()
	sessions := store.NewSessionStore()
	tokens := tokenstore.NewInMemoryStore("test_auth", 24*time.Hour)
	auth.sessions = sessions
	auth.tokens = tokens
	f := facade.New(sessions, auth)
	return NewAuthHandler(f, nil, bridge, nil, tokens, nil), sessions, tokens
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestSignInHandler(t *testing.T) {
	h, _, _ := newHandlerForTest(t, &stubAuth{}, &stubBridge{consistent: true})

	body := strings.NewReader(`{"email":"chef@example.com","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", body)
	rr := httptest.NewRecorder()
	h.SignIn(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	env := decode(t, rr)
	if !env.Success {
		t.Fatalf("expected success envelope: %s", rr.Body.String())
	}
	var data sessionResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !data.IsAuthenticated || data.User == nil || data.User.Email != "chef@example.com" {
		t.Fatalf("unexpected view: %+v", data)
	}
	if data.AccessTokenFingerprint == "" {
		t.Fatal("fingerprint missing from session response")
	}
}

func TestSignInHandlerRejectsBadBody(t *testing.T) {
	h, _, _ := newHandlerForTest(t, &stubAuth{}, &stubBridge{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader(`{`))
	rr := httptest.NewRecorder()
	h.SignIn(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader(`{"email":"a@b.c"}`))
	rr = httptest.NewRecorder()
	h.SignIn(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing password must 400, got %d", rr.Code)
	}
}

func TestSignInHandlerInvalidCredentials(t *testing.T) {
	h, _, _ := newHandlerForTest(t, &stubAuth{err: autherr.ErrInvalidCredentials}, &stubBridge{})

	body := strings.NewReader(`{"email":"chef@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", body)
	rr := httptest.NewRecorder()
	h.SignIn(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	env := decode(t, rr)
	if env.Error == nil || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected the generic error code, got %s", rr.Body.String())
	}
}

func TestSessionHandler(t *testing.T) {
	h, sessions, tokens := newHandlerForTest(t, &stubAuth{}, &stubBridge{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	rr := httptest.NewRecorder()
	h.Session(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("signed out must 401, got %d", rr.Code)
	}

	sessions.SetSession(&domain.Session{User: domain.User{ID: "user-1", Email: "chef@example.com"}})
	if err := tokens.SetRaw(context.Background(), tokenstore.RawAccessTokenSlot, "raw-token"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	rr = httptest.NewRecorder()
	h.Session(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestSignOutHandler(t *testing.T) {
	auth := &stubAuth{}
	h, sessions, tokens := newHandlerForTest(t, auth, &stubBridge{})
	ctx := context.Background()

	sessions.SetSession(&domain.Session{User: domain.User{ID: "user-1"}})
	_ = tokens.SetRaw(ctx, tokenstore.RawAccessTokenSlot, "raw-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signout", nil)
	rr := httptest.NewRecorder()
	h.SignOut(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if sessions.Snapshot().SignedIn() {
		t.Fatal("store must be signed out")
	}
	if _, ok := tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot); ok {
		t.Fatal("tokens must be cleared")
	}
}

func TestVerifyHandler(t *testing.T) {
	h, _, _ := newHandlerForTest(t, &stubAuth{}, &stubBridge{consistent: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil)
	rr := httptest.NewRecorder()
	h.Verify(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	h, _, _ = newHandlerForTest(t, &stubAuth{}, &stubBridge{consistent: false})
	rr = httptest.NewRecorder()
	h.Verify(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("inconsistent stores must 409, got %d", rr.Code)
	}
}

func TestGoogleLoginWithoutBroker(t *testing.T) {
	h, _, _ := newHandlerForTest(t, &stubAuth{}, &stubBridge{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login", nil)
	rr := httptest.NewRecorder()
	h.GoogleLogin(rr, req)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without oauth config, got %d", rr.Code)
	}
}
