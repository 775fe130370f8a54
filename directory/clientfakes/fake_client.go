package clientfakes

import (
	"sync"

	"github.com/jrsteele09/go-auth-core/directory"
)

var _ directory.Client = (*FakeClient)(nil)

type fakeUser struct {
	password string
	attrs    map[string][]string
	groups   []string
}

// FakeClient is an in-memory directory.Client for tests.
type FakeClient struct {
	lock  sync.RWMutex
	users map[string]fakeUser

	BindErr error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{users: make(map[string]fakeUser)}
}

// AddUser registers a directory user with a password, attributes and groups.
func (c *FakeClient) AddUser(username, password string, attrs map[string][]string, groups []string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.users[username] = fakeUser{password: password, attrs: attrs, groups: groups}
}

func (c *FakeClient) Bind(username, password string) error {
	if c.BindErr != nil {
		return c.BindErr
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	user, ok := c.users[username]
	if !ok || user.password != password {
		return directory.ErrBindFailed
	}
	return nil
}

func (c *FakeClient) FindUser(attribute, value string) (map[string][]string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	for username, user := range c.users {
		if attribute == "uid" && username == value {
			return user.attrs, nil
		}
		for _, v := range user.attrs[attribute] {
			if v == value {
				return user.attrs, nil
			}
		}
	}
	return nil, directory.ErrBindFailed
}

func (c *FakeClient) ListGroups(username string) ([]string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	user, ok := c.users[username]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), user.groups...), nil
}
