package providerfakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-core/provider"
)

// FakeAdminChecker is an in-memory permission-system admin check.
type FakeAdminChecker struct {
	lock   sync.RWMutex
	admins map[string]bool

	// Err, when set, is returned by every IsAdmin call.
	Err error
	// Calls counts IsAdmin invocations.
	Calls int
}

var _ provider.AdminChecker = (*FakeAdminChecker)(nil)

func NewFakeAdminChecker() *FakeAdminChecker {
	return &FakeAdminChecker{admins: make(map[string]bool)}
}

// SetAdmin marks a user uuid as admin or not.
func (f *FakeAdminChecker) SetAdmin(userUUID string, isAdmin bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.admins[userUUID] = isAdmin
}

func (f *FakeAdminChecker) IsAdmin(_ context.Context, userUUID string) (bool, error) {
	f.lock.Lock()
	f.Calls++
	f.lock.Unlock()

	if f.Err != nil {
		return false, f.Err
	}

	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.admins[userUUID], nil
}
