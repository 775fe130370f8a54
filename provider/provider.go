// Package provider implements the pluggable authentication strategies (JWT,
// API key, directory, admin) and the manager that dispatches requests
// across them.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// Provider is the common authentication-strategy contract. Authenticate
// never panics or leaks provider internals across the boundary: a failure
// is a nil identity plus an internal reason retrievable via Error() for
// logging.
type Provider interface {
	Name() string

	// Authenticate resolves the request to an identity, or nil on any
	// failure. On success the provider writes the authenticated attributes
	// onto the request for downstream use.
	Authenticate(ctx context.Context, req request.Request) *identity.Identity

	// IsAdmin resolves administrative privilege for an identity. It fails
	// closed: any resolution failure is false.
	IsAdmin(ctx context.Context, ident *identity.Identity) bool

	// ValidateToken fully validates a token of this provider's format.
	ValidateToken(ctx context.Context, tokenStr string) bool

	// CanHandleToken reports by structural inspection whether a token is of
	// this provider's format, without attempting full verification.
	CanHandleToken(tokenStr string) bool

	GenerateTokens(ctx context.Context, ident *identity.Identity, accessTTL, refreshTTL time.Duration) (*token.Pair, error)

	// RefreshTokens mints a successor pair for the session using the
	// configured lifetimes. The caller owns swapping the pair into the row.
	RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*token.Pair, error)

	// Error returns the internal reason for the last Authenticate failure.
	Error() string
}

// SessionResolver lets providers resolve a bearer token to its live session
// without depending on the token manager type directly.
type SessionResolver interface {
	SessionByAccessToken(ctx context.Context, accessToken string) (*session.Session, error)
}

// AdminChecker is the external permission-system capability used for admin
// resolution.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userUUID string) (bool, error)
}

// lastError retains the internal reason for the most recent authentication
// failure. Providers are shared across requests, so access is serialized.
type lastError struct {
	lock sync.RWMutex
	msg  string
}

func (e *lastError) fail(msg string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.msg = msg
}

func (e *lastError) clear() {
	e.fail("")
}

// Error returns the last recorded failure reason.
func (e *lastError) Error() string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.msg
}
