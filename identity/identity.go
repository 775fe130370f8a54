package identity

import (
	"strings"
	"time"
)

// RoleSuperuser grants administrative access everywhere. Role comparisons
// are case-insensitive throughout the core.
const RoleSuperuser = "superuser"

// Profile holds the displayable part of an identity.
type Profile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Photo     string `json:"photo,omitempty"`
}

// Identity is an authenticated principal. Providers produce identities;
// the token layer never creates one itself.
type Identity struct {
	UUID          string              `json:"uuid"`
	Username      string              `json:"username,omitempty"`
	Email         string              `json:"email,omitempty"`
	EmailVerified bool                `json:"email_verified,omitempty"`
	Locale        string              `json:"locale,omitempty"`
	Roles         []string            `json:"roles,omitempty"`
	Permissions   map[string][]string `json:"permissions,omitempty"` // resource -> actions
	IsAdmin       bool                `json:"is_admin,omitempty"`
	Provider      string              `json:"provider,omitempty"`
	RememberMe    bool                `json:"remember_me,omitempty"`
	Profile       Profile             `json:"profile,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at,omitempty"`
}

// HasRole reports whether the identity holds the given role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsSuperuser returns true if the identity holds the superuser role.
func (i *Identity) IsSuperuser() bool {
	return i.HasRole(RoleSuperuser)
}

// HasProfile reports whether any profile field is populated.
func (i *Identity) HasProfile() bool {
	return i.Profile.FirstName != "" || i.Profile.LastName != "" || i.Profile.Photo != ""
}

// PublicUser is the caller-visible projection of an identity, shaped like an
// OIDC userinfo record. Password hashes and internal flags never appear here.
type PublicUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Username      string `json:"username"`
	Locale        string `json:"locale,omitempty"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
}

// PublicUser strips the identity down to its caller-visible projection.
func (i *Identity) PublicUser() PublicUser {
	pu := PublicUser{
		ID:            i.UUID,
		Email:         i.Email,
		EmailVerified: i.EmailVerified,
		Username:      i.Username,
		Locale:        i.Locale,
		GivenName:     i.Profile.FirstName,
		FamilyName:    i.Profile.LastName,
		Picture:       i.Profile.Photo,
		UpdatedAt:     i.UpdatedAt.Unix(),
	}
	if i.Profile.FirstName != "" || i.Profile.LastName != "" {
		pu.Name = strings.TrimSpace(i.Profile.FirstName + " " + i.Profile.LastName)
	}
	if i.UpdatedAt.IsZero() {
		pu.UpdatedAt = 0
	}
	return pu
}
