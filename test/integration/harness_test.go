package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kitchenops/sessionbridge/internal/bridge"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/facade"
	"github.com/kitchenops/sessionbridge/internal/health"
	"github.com/kitchenops/sessionbridge/internal/http/handler"
	"github.com/kitchenops/sessionbridge/internal/http/router"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/repository"
	"github.com/kitchenops/sessionbridge/internal/service"
	"github.com/kitchenops/sessionbridge/internal/store"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

const (
	testEmail    = "chef@example.com"
	testPassword = "valid-password"
	testUserID   = "user-1"
	testOrgID    = "org-42"
	oauthCode    = "good-code"
)

// fakeProvider emulates the hosted auth service's REST surface: password and
// refresh grants, the authorization-code exchange behind the OAuth broker,
// user lookup, logout and the health probe.
type fakeProvider struct {
	mu       sync.Mutex
	counter  int
	access   map[string]bool
	refresh  map[string]bool
	metadata map[string]any
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
		metadata: map[string]any{
			"organizationId":   testOrgID,
			"organizationName": "Brasserie Nine",
			"full_name":        "Head Chef",
		},
	}
}

func (p *fakeProvider) issue() (string, string) {
	p.counter++
	at := fmt.Sprintf("at-%d", p.counter)
	rt := fmt.Sprintf("rt-%d", p.counter)
	p.access[at] = true
	p.refresh[rt] = true
	return at, rt
}

func (p *fakeProvider) sessionJSON(at, rt string) map[string]any {
	return map[string]any{
		"access_token":  at,
		"refresh_token": rt,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user": map[string]any{
			"id":            testUserID,
			"email":         testEmail,
			"user_metadata": p.metadata,
		},
	}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	writeJSON := func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	switch {
	case r.URL.Path == "/auth/v1/health":
		writeJSON(http.StatusOK, map[string]string{"status": "ok"})

	case r.URL.Path == "/auth/v1/token":
		grant := r.URL.Query().Get("grant_type")
		if grant == "" {
			_ = r.ParseForm()
			grant = r.PostFormValue("grant_type")
		}
		switch grant {
		case "password":
			var req struct{ Email, Password string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Email != testEmail || req.Password != testPassword {
				writeJSON(http.StatusBadRequest, map[string]string{"error_description": "Invalid login credentials"})
				return
			}
			at, rt := p.issue()
			writeJSON(http.StatusOK, p.sessionJSON(at, rt))
		case "refresh_token":
			var req struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if !p.refresh[req.RefreshToken] {
				writeJSON(http.StatusBadRequest, map[string]string{"error_description": "Invalid Refresh Token"})
				return
			}
			delete(p.refresh, req.RefreshToken)
			at, rt := p.issue()
			writeJSON(http.StatusOK, p.sessionJSON(at, rt))
		case "authorization_code":
			if r.PostFormValue("code") != oauthCode {
				writeJSON(http.StatusBadRequest, map[string]string{"error_description": "invalid code"})
				return
			}
			at, rt := p.issue()
			writeJSON(http.StatusOK, p.sessionJSON(at, rt))
		default:
			writeJSON(http.StatusBadRequest, map[string]string{"error_description": "unsupported grant"})
		}

	case r.URL.Path == "/auth/v1/user":
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !p.access[token] {
			writeJSON(http.StatusUnauthorized, map[string]string{"msg": "invalid token"})
			return
		}
		writeJSON(http.StatusOK, map[string]any{
			"id":            testUserID,
			"email":         testEmail,
			"user_metadata": p.metadata,
		})

	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSON(http.StatusNotFound, map[string]string{"msg": "not found"})
	}
}

type stack struct {
	baseURL  string
	client   *http.Client
	provider *fakeProvider
	tokens   tokenstore.Store
	sessions *store.SessionStore
	auth     *service.AuthService
}

func newTestStack(t *testing.T) *stack {
	t.Helper()

	fp := newFakeProvider()
	providerSrv := httptest.NewServer(fp)
	t.Cleanup(providerSrv.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	tokens := tokenstore.NewRedisStore(redisClient, "itest_auth", 24*time.Hour)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := repository.OpenDatabase("sqlite", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	seed := []any{
		&domain.OrgMembership{UserID: testUserID, OrganizationID: testOrgID, Role: "admin"},
		&domain.Profile{UserID: testUserID, Metadata: `{"station":"pass"}`},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed directory: %v", err)
		}
	}

	client := provider.NewHTTPClient(providerSrv.URL, "test-key", 5*time.Second)
	directory := repository.NewDirectoryRepository(db)
	sessions := store.NewSessionStore()
	legacy := store.NewLegacyStore()
	factory := service.NewSessionFactory(directory, tokens, nil)
	validator := service.NewSessionValidator(client, factory, tokens, nil)
	auth := service.NewAuthService(client, factory, validator, tokens, sessions, legacy, time.Minute, nil)
	t.Cleanup(auth.Close)

	br := bridge.New(sessions, legacy, factory, nil, nil)
	f := facade.New(sessions, auth)
	broker := provider.NewOAuthBroker(client, "client-id", "client-secret", "http://localhost/api/v1/auth/google/callback")

	readiness := health.NewProbeRunner(2*time.Second, 0)
	readiness.Register("database", health.DatabaseCheck(db))
	readiness.Register("redis", health.RedisCheck(redisClient))
	readiness.Register("provider", health.ProviderCheck(nil, providerSrv.URL, "test-key"))

	h := router.NewRouter(router.Dependencies{
		AuthHandler: handler.NewAuthHandler(f, auth, br, broker, tokens, nil),
		Views:       f,
		IsPublicRoute: func(path string) bool {
			return strings.HasPrefix(path, "/api/v1/auth") || strings.HasPrefix(path, "/health")
		},
		APIRateLimitRPM:  10000,
		AuthRateLimitRPM: 10000,
		Readiness:        readiness,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &stack{
		baseURL:  srv.URL,
		client:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
		provider: fp,
		tokens:   tokens,
		sessions: sessions,
		auth:     auth,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", raw, err)
		}
	}
	return resp, env
}

func signIn(t *testing.T, s *stack) envelope {
	t.Helper()
	resp, env := doJSON(t, s.client, http.MethodPost, s.baseURL+"/api/v1/auth/signin", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("sign-in failed: status=%d success=%v", resp.StatusCode, env.Success)
	}
	return env
}
