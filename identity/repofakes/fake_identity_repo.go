package repofakes

import (
	"sync"

	"github.com/jrsteele09/go-auth-core/identity"
)

var _ identity.CredentialRepo = (*FakeIdentityRepo)(nil)

// FakeIdentityRepo is an in-memory identity.CredentialRepo for tests.
type FakeIdentityRepo struct {
	lock       sync.RWMutex
	identities map[string]*identity.Identity // keyed by UUID
	digests    map[string]string             // UUID -> password digest
}

func NewFakeIdentityRepo() *FakeIdentityRepo {
	return &FakeIdentityRepo{
		identities: make(map[string]*identity.Identity),
		digests:    make(map[string]string),
	}
}

func (r *FakeIdentityRepo) GetByUUID(uuid string) (*identity.Identity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ident, ok := r.identities[uuid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	clone := *ident
	return &clone, nil
}

func (r *FakeIdentityRepo) GetByUsername(username string) (*identity.Identity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, ident := range r.identities {
		if ident.Username == username {
			clone := *ident
			return &clone, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (r *FakeIdentityRepo) GetByEmail(email string) (*identity.Identity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, ident := range r.identities {
		if ident.Email == email {
			clone := *ident
			return &clone, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (r *FakeIdentityRepo) Upsert(ident *identity.Identity) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	clone := *ident
	r.identities[ident.UUID] = &clone
	return nil
}

func (r *FakeIdentityRepo) PasswordDigest(uuid string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	digest, ok := r.digests[uuid]
	if !ok {
		return "", identity.ErrNotFound
	}
	return digest, nil
}

func (r *FakeIdentityRepo) SetPasswordDigest(uuid, digest string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.digests[uuid] = digest
	return nil
}
