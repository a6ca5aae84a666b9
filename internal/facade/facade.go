// Package facade presents one stable read-only view of the authenticated
// state to the rest of the application, regardless of which underlying store
// is authoritative.
package facade

import (
	"context"

	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/store"
)

// AuthView is the single object shape consumers read. It is a snapshot, not
// a live handle; subscribe for updates.
type AuthView struct {
	User            *domain.User         `json:"user,omitempty"`
	Organization    *domain.Organization `json:"organization,omitempty"`
	OrganizationID  string               `json:"organization_id,omitempty"`
	IsLoading       bool                 `json:"is_loading"`
	Err             error                `json:"-"`
	IsDev           bool                 `json:"is_dev"`
	HasAdminAccess  bool                 `json:"has_admin_access"`
	IsAuthenticated bool                 `json:"is_authenticated"`
	DisplayName     string               `json:"display_name,omitempty"`
}

// Authenticator is the slice of the auth service the facade delegates writes
// to.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context)
}

type Facade struct {
	sessions *store.SessionStore
	auth     Authenticator
}

func New(sessions *store.SessionStore, auth Authenticator) *Facade {
	return &Facade{sessions: sessions, auth: auth}
}

// Snapshot derives the view from the authoritative store. The organization
// is synthesized as a placeholder from the organization id and user claims
// until a richer record has been loaded; it is not cached.
func (f *Facade) Snapshot() AuthView {
	st := f.sessions.Snapshot()
	view := AuthView{IsLoading: st.Loading, Err: st.Err}
	if st.Session == nil {
		return view
	}
	sess := st.Session
	user := sess.User
	view.User = &user
	view.OrganizationID = sess.OrganizationID
	view.IsDev = sess.IsDev
	view.HasAdminAccess = sess.HasAdminAccess
	view.IsAuthenticated = true
	view.DisplayName = user.DisplayName()
	if sess.OrganizationID != "" {
		view.Organization = &domain.Organization{
			ID:          sess.OrganizationID,
			Name:        organizationName(sess),
			Placeholder: true,
		}
	}
	return view
}

// Subscribe invokes fn with a fresh view on every state change and returns
// the unsubscribe function.
func (f *Facade) Subscribe(fn func(AuthView)) func() {
	return f.sessions.Subscribe(func(store.State) {
		fn(f.Snapshot())
	})
}

func (f *Facade) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	return f.auth.SignIn(ctx, email, password)
}

func (f *Facade) SignOut(ctx context.Context) {
	f.auth.SignOut(ctx)
}

func organizationName(sess *domain.Session) string {
	if name, ok := sess.Metadata["organizationName"].(string); ok {
		return name
	}
	return ""
}
