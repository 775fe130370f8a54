package cachefakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-core/cache"
)

var _ cache.PermissionSource = (*FakePermissionSource)(nil)

// FakePermissionSource is an in-memory cache.PermissionSource for tests.
type FakePermissionSource struct {
	lock        sync.RWMutex
	permissions map[string]map[string][]string
	roles       map[string][]string

	Err   error
	Calls int
}

func NewFakePermissionSource() *FakePermissionSource {
	return &FakePermissionSource{
		permissions: make(map[string]map[string][]string),
		roles:       make(map[string][]string),
	}
}

// SetUser configures the permissions and roles returned for a user.
func (s *FakePermissionSource) SetUser(userUUID string, permissions map[string][]string, roles []string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.permissions[userUUID] = permissions
	s.roles[userUUID] = roles
}

func (s *FakePermissionSource) PermissionsFor(_ context.Context, userUUID string) (map[string][]string, []string, error) {
	s.lock.Lock()
	s.Calls++
	s.lock.Unlock()

	if s.Err != nil {
		return nil, nil, s.Err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.permissions[userUUID], s.roles[userUUID], nil
}
