package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned by a Store when no row matches.
var ErrSessionNotFound = errors.New("session not found")

// Rotation carries the replacement token pair swapped into a session row on
// refresh.
type Rotation struct {
	AccessToken      string
	RefreshToken     string
	TokenFingerprint string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	LastActivity     time.Time
}

// Store is the relational capability behind the session table. The durable
// store is authoritative for session existence and status; every revocation
// decision reads it directly.
//
// UpdateRefreshTokens is a compare-and-swap: the update predicate matches
// the old refresh token AND status=active, and the affected row count is
// reported so that exactly one of two racing refresh exchanges wins.
type Store interface {
	Insert(ctx context.Context, sess *Session) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateStatusByAccessToken(ctx context.Context, accessToken string, status Status) (int64, error)
	UpdateRefreshTokens(ctx context.Context, oldRefreshToken string, rotation Rotation) (int64, error)
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error

	ByID(ctx context.Context, id string) (*Session, error)
	ByAccessToken(ctx context.Context, accessToken string) (*Session, error)
	// ByRefreshToken matches active rows only; a revoked or expired session
	// never resolves through its refresh token.
	ByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	ByUserUUID(ctx context.Context, userUUID string) ([]*Session, error)

	// ExpireBefore transitions active rows whose refresh window closed before
	// cutoff to StatusExpired and returns the transitioned rows.
	ExpireBefore(ctx context.Context, cutoff time.Time) ([]*Session, error)
	Count(ctx context.Context, status Status) (int64, error)

	// WithTx runs fn inside a single transaction boundary: fn's store view
	// is transactional, an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
