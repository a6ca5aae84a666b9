package domain

import "time"

// Membership roles assigned per organization. "dev" is a system-level role
// carried in user claims rather than the membership table.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleDev    = "dev"
)

// Claims is the typed view of the provider's free-form user metadata,
// extracted once when a session is built. Unknown fields stay in the raw
// metadata map; these are the only ones role derivation depends on.
type Claims struct {
	Role           string `json:"role,omitempty"`
	SystemRole     string `json:"system_role,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	FullName       string `json:"full_name,omitempty"`
}

// User is a reference to an identity owned by the remote auth provider.
// The provider remains the source of truth; this is never a durable copy.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Claims   Claims         `json:"claims"`
}

// Session is the locally held record of who is authenticated and what they
// may do. It is only meaningful while paired with a live remote token and is
// rebuilt in full on every refresh so role and metadata drift is picked up.
type Session struct {
	User           User           `json:"user"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IsDev          bool           `json:"is_dev"`
	HasAdminAccess bool           `json:"has_admin_access"`
	LastRefreshed  time.Time      `json:"last_refreshed"`
}

// Organization as surfaced to the UI. Placeholder marks records synthesized
// from an organization id before the full record has been loaded.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// ParseClaims extracts the typed claims from a provider metadata map.
// Missing or non-string fields are treated as absent.
func ParseClaims(metadata map[string]any) Claims {
	return Claims{
		Role:           stringField(metadata, "role"),
		SystemRole:     stringField(metadata, "system_role"),
		OrganizationID: stringField(metadata, "organizationId"),
		FullName:       stringField(metadata, "full_name"),
	}
}

// IsDev reports whether the claims mark the user as a platform developer.
func (c Claims) IsDev() bool {
	return c.SystemRole == RoleDev || c.Role == RoleDev
}

// DeriveAccess computes the dev and admin flags from claims plus the
// membership role resolved from the directory. Owners, admins and devs get
// admin access; devs get both flags.
func DeriveAccess(c Claims, membershipRole string) (isDev, hasAdminAccess bool) {
	isDev = c.IsDev()
	hasAdminAccess = isDev || membershipRole == RoleOwner || membershipRole == RoleAdmin
	return isDev, hasAdminAccess
}

// DisplayName prefers the claimed full name, falling back to the email.
func (u User) DisplayName() string {
	if u.Claims.FullName != "" {
		return u.Claims.FullName
	}
	return u.Email
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}
