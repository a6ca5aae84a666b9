// Package handler exposes the session facade to UI layers over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/facade"
	"github.com/kitchenops/sessionbridge/internal/http/response"
	"github.com/kitchenops/sessionbridge/internal/observability"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/security"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

const oauthStateCookie = "oauth_state"

// SessionEstablisher installs a provider session obtained via OAuth.
// *service.AuthService satisfies this.
type SessionEstablisher interface {
	Establish(ctx context.Context, remote *provider.Session) (*domain.Session, error)
}

// StoreBridge is the bridge's diagnostics surface.
type StoreBridge interface {
	Verify(ctx context.Context) bool
	Sync(ctx context.Context) error
}

type AuthHandler struct {
	facade    *facade.Facade
	establish SessionEstablisher
	stores    StoreBridge
	broker    *provider.OAuthBroker
	tokens    tokenstore.Store
	logger    *slog.Logger
}

func NewAuthHandler(
	f *facade.Facade,
	establish SessionEstablisher,
	stores StoreBridge,
	broker *provider.OAuthBroker,
	tokens tokenstore.Store,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		facade:    f,
		establish: establish,
		stores:    stores,
		broker:    broker,
		tokens:    tokens,
		logger:    logger,
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	facade.AuthView
	AccessTokenFingerprint string `json:"access_token_fingerprint,omitempty"`
	AccessTokenExpiresSoon bool   `json:"access_token_expires_soon,omitempty"`
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "email and password are required", nil)
		return
	}

	if _, err := h.facade.SignIn(r.Context(), req.Email, req.Password); err != nil {
		observability.Audit(r, "auth.signin.rejected")
		response.AuthError(w, r, err)
		return
	}
	observability.Audit(r, "auth.signin.accepted")
	response.JSON(w, r, http.StatusOK, h.sessionResponse(r.Context()))
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.facade.SignOut(r.Context())
	observability.Audit(r, "auth.signout")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	view := h.facade.Snapshot()
	if !view.IsAuthenticated {
		response.AuthError(w, r, autherr.ErrSignedOut)
		return
	}
	response.JSON(w, r, http.StatusOK, h.sessionResponse(r.Context()))
}

// Verify reports whether the two session stores agree. Diagnostics only.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	consistent := h.stores.Verify(r.Context())
	status := http.StatusOK
	if !consistent {
		status = http.StatusConflict
	}
	response.JSON(w, r, status, map[string]bool{"consistent": consistent})
}

// SyncStores forces a reconciliation pass. Admin-only repair hatch.
func (h *AuthHandler) SyncStores(w http.ResponseWriter, r *http.Request) {
	observability.Audit(r, "auth.stores.sync")
	if err := h.stores.Sync(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "forced store sync failed", "error", err)
		response.AuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"consistent": h.stores.Verify(r.Context())})
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		response.Error(w, r, http.StatusNotImplemented, "OAUTH_DISABLED", "google sign-in is not configured", nil)
		return
	}
	url, state := h.broker.LoginURL("google")
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	observability.Audit(r, "auth.google.login")
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		response.Error(w, r, http.StatusNotImplemented, "OAUTH_DISABLED", "google sign-in is not configured", nil)
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		observability.Audit(r, "auth.google.state_mismatch")
		response.Error(w, r, http.StatusBadRequest, "OAUTH_STATE_MISMATCH", "state parameter does not match", nil)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		response.Error(w, r, http.StatusBadRequest, "OAUTH_CODE_MISSING", "code parameter is required", nil)
		return
	}

	remote, err := h.broker.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WarnContext(r.Context(), "oauth code exchange failed", "error", err)
		response.AuthError(w, r, autherr.ErrInvalidCredentials)
		return
	}
	if _, err := h.establish.Establish(r.Context(), remote); err != nil {
		h.logger.ErrorContext(r.Context(), "session establish after oauth failed", "error", err)
		response.AuthError(w, r, err)
		return
	}
	observability.Audit(r, "auth.google.accepted", "token_fp", security.Fingerprint(remote.AccessToken))
	response.JSON(w, r, http.StatusOK, h.sessionResponse(r.Context()))
}

func (h *AuthHandler) sessionResponse(ctx context.Context) sessionResponse {
	resp := sessionResponse{AuthView: h.facade.Snapshot()}
	raw, ok := h.tokens.GetRaw(ctx, tokenstore.RawAccessTokenSlot)
	if !ok {
		return resp
	}
	resp.AccessTokenFingerprint = security.Fingerprint(raw)
	if claims, err := security.InspectAccessToken(raw); err == nil {
		resp.AccessTokenExpiresSoon = claims.ExpiresWithin(time.Now(), 5*time.Minute)
	}
	return resp
}
