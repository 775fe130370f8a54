// Package providerfakes holds in-memory fakes for the provider package's
// collaborator interfaces.
package providerfakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/provider"
)

// FakeKeyStore is an in-memory API key store.
type FakeKeyStore struct {
	lock sync.RWMutex
	keys map[string]*identity.Identity

	// LookupErr, when set, is returned by every IdentityForKey call.
	LookupErr error
}

var _ provider.KeyStore = (*FakeKeyStore)(nil)

func NewFakeKeyStore() *FakeKeyStore {
	return &FakeKeyStore{keys: make(map[string]*identity.Identity)}
}

// AddKey registers a key for an identity.
func (f *FakeKeyStore) AddKey(key string, ident *identity.Identity) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.keys[key] = ident
}

func (f *FakeKeyStore) IdentityForKey(_ context.Context, key string) (*identity.Identity, error) {
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}

	f.lock.RLock()
	defer f.lock.RUnlock()

	ident, ok := f.keys[key]
	if !ok {
		return nil, errors.New("unknown api key")
	}
	clone := *ident
	return &clone, nil
}
