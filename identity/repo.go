package identity

import "github.com/pkg/errors"

// ErrNotFound is returned by a Repo when no identity matches.
var ErrNotFound = errors.New("identity not found")

// Repo abstracts the user directory of record. Providers use it to
// find-or-create identities; the token layer uses it to backfill profile
// data when a caller-supplied identity arrives without one.
type Repo interface {
	GetByUUID(uuid string) (*Identity, error)
	GetByUsername(username string) (*Identity, error)
	GetByEmail(email string) (*Identity, error)
	Upsert(ident *Identity) error
}

// CredentialRepo extends Repo with password-digest access for providers
// that verify local credentials (the admin provider).
type CredentialRepo interface {
	Repo
	PasswordDigest(uuid string) (string, error)
	SetPasswordDigest(uuid, digest string) error
}
