package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kitchenops/sessionbridge/internal/domain"
)

// HTTPClient talks to a hosted auth service exposing a GoTrue-style REST
// surface under <base>/auth/v1. Every request carries the public API key;
// user-scoped requests additionally carry the bearer access token.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu       sync.Mutex
	handlers map[int]AuthStateHandler
	nextID   int
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		handlers: make(map[int]AuthStateHandler),
	}
}

type wireUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type wireSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         wireUser `json:"user"`
}

type wireError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var ws wireSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &ws)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	session := c.toSession(ws)
	c.emit(EventSignedIn, session)
	return session, nil
}

func (c *HTTPClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var ws wireSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &ws)
	if err != nil {
		return nil, fmt.Errorf("refresh grant: %w", err)
	}
	session := c.toSession(ws)
	c.emit(EventTokenRefreshed, session)
	return session, nil
}

func (c *HTTPClient) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.emit(EventSignedOut, nil)
	return nil
}

func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	var wu wireUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &wu); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user := toUser(wu)
	return &user, nil
}

func (c *HTTPClient) UpdateUser(ctx context.Context, accessToken string, metadata map[string]any) (*domain.User, error) {
	body := map[string]any{"data": metadata}
	var wu wireUser
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, &wu); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	user := toUser(wu)
	return &user, nil
}

// OnAuthStateChange registers a handler fired after sign-in, refresh and
// sign-out round trips. Handlers run synchronously on the calling goroutine.
func (c *HTTPClient) OnAuthStateChange(handler AuthStateHandler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *HTTPClient) emit(event AuthEvent, session *Session) {
	c.mu.Lock()
	handlers := make([]AuthStateHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(event, session)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var we wireError
	if err := json.Unmarshal(payload, &we); err == nil {
		msg := we.ErrorDescription
		if msg == "" {
			msg = we.Message
		}
		if msg == "" {
			msg = we.Error
		}
		if msg != "" {
			return fmt.Errorf("provider responded %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("provider responded %d", resp.StatusCode)
}

func (c *HTTPClient) toSession(ws wireSession) *Session {
	return &Session{
		AccessToken:  ws.AccessToken,
		RefreshToken: ws.RefreshToken,
		TokenType:    ws.TokenType,
		ExpiresIn:    ws.ExpiresIn,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(ws.ExpiresIn) * time.Second),
		User:         toUser(ws.User),
	}
}

func toUser(wu wireUser) domain.User {
	return domain.User{
		ID:       wu.ID,
		Email:    wu.Email,
		Metadata: wu.UserMetadata,
		Claims:   domain.ParseClaims(wu.UserMetadata),
	}
}
