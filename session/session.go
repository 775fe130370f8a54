// Package session holds the durable session model, the relational store
// capability, the two-tier storage service and the in-process query filter.
package session

import (
	"time"
)

// Status is the lifecycle state of a session row.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Session is the unit of durable state binding a user, a token pair and
// request metadata. One user may hold many concurrent sessions; at most one
// active row exists per refresh-token value.
type Session struct {
	ID               string    `json:"id"`
	UserUUID         string    `json:"user_uuid"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenFingerprint string    `json:"token_fingerprint"`
	Provider         string    `json:"provider"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	RememberMe       bool      `json:"remember_me,omitempty"`
	LastActivity     time.Time `json:"last_activity,omitempty"`
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.RefreshExpiresAt)
}

// AccessValid reports whether the access token window is still open.
func (s *Session) AccessValid(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.AccessExpiresAt)
}

// Record is the cache-tier projection of a Session, enriched with
// authorization data and the staleness-control fields that let cached
// permissions be judged independently of the session TTL.
type Record struct {
	Session

	Roles               []string            `json:"roles,omitempty"`
	Permissions         map[string][]string `json:"permissions,omitempty"`
	PermissionsLoadedAt time.Time           `json:"permissions_loaded_at,omitempty"`
	PermissionHash      string              `json:"permission_hash,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	if r.Roles != nil {
		clone.Roles = append([]string(nil), r.Roles...)
	}
	if r.Permissions != nil {
		clone.Permissions = make(map[string][]string, len(r.Permissions))
		for resource, actions := range r.Permissions {
			clone.Permissions[resource] = append([]string(nil), actions...)
		}
	}
	return &clone
}
