package middleware

import (
	"context"
	"net/http"

	"github.com/kitchenops/sessionbridge/internal/facade"
	"github.com/kitchenops/sessionbridge/internal/http/response"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

type contextKey string

const viewContextKey contextKey = "auth_view"

// ViewSource yields the current auth view. *facade.Facade satisfies this.
type ViewSource interface {
	Snapshot() facade.AuthView
}

// SessionGuard is the declarative routing guard: public routes pass through,
// everything else requires an authenticated view. Unauthenticated requests
// get a 401, never a partial response; the client decides how to route from
// there.
func SessionGuard(isPublic func(path string) bool, views ViewSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				observability.RecordGuardDecision(r.Context(), "public")
				next.ServeHTTP(w, r)
				return
			}
			view := views.Snapshot()
			if !view.IsAuthenticated {
				observability.RecordGuardDecision(r.Context(), "deny")
				response.Error(w, r, http.StatusUnauthorized, "NOT_AUTHENTICATED", "sign in required", nil)
				return
			}
			observability.RecordGuardDecision(r.Context(), "allow")
			ctx := context.WithValue(r.Context(), viewContextKey, view)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewFromContext returns the auth view the guard attached, if any.
func ViewFromContext(ctx context.Context) (facade.AuthView, bool) {
	v, ok := ctx.Value(viewContextKey).(facade.AuthView)
	return v, ok
}

// RequireAdmin gates admin-only routes on the derived access flag.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, ok := ViewFromContext(r.Context())
		if !ok || !view.HasAdminAccess {
			observability.RecordGuardDecision(r.Context(), "deny_admin")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
