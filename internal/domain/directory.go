package domain

import "time"

// OrgMembership associates a provider user with an organization and a role.
// At most one row per user is consulted when building a session.
type OrgMembership struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	OrganizationID string    `gorm:"size:64;index;not null" json:"organization_id"`
	Role           string    `gorm:"size:32;not null" json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile holds extended per-user metadata maintained outside the auth
// provider. Metadata is a raw JSON object; absence of a row is normal.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
