package provider

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/token"
)

// ErrInvalidCredentials is the single caller-visible authentication error.
// Per-provider failure detail is deliberately obscured so callers cannot
// tell which check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Manager holds the named provider registry plus one default and dispatches
// authentication across them. Registration order is a behavioral contract:
// token routing and multi-provider dispatch are first-match-wins in that
// order.
type Manager struct {
	lock        sync.RWMutex
	providers   map[string]Provider
	order       []string
	defaultName string
}

// NewManager creates a Manager. The first registered provider becomes the
// default until SetDefault overrides it.
func NewManager(providers ...Provider) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider)}
	for _, p := range providers {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds a provider under its name. Duplicate names are rejected to
// keep the registration-order contract unambiguous.
func (m *Manager) Register(p Provider) error {
	if p == nil {
		return errors.New("[Manager.Register] provider is nil")
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	name := p.Name()
	if _, exists := m.providers[name]; exists {
		return errors.Errorf("[Manager.Register] provider %q already registered", name)
	}
	m.providers[name] = p
	m.order = append(m.order, name)
	if m.defaultName == "" {
		m.defaultName = name
	}
	return nil
}

// SetDefault selects the provider used by Authenticate.
func (m *Manager) SetDefault(name string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.providers[name]; !ok {
		return errors.Errorf("[Manager.SetDefault] unknown provider %q", name)
	}
	m.defaultName = name
	return nil
}

// Provider returns the named provider.
func (m *Manager) Provider(name string) (Provider, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	p, ok := m.providers[name]
	return p, ok
}

// Default returns the default provider.
func (m *Manager) Default() Provider {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.providers[m.defaultName]
}

// Authenticate delegates to the default provider.
func (m *Manager) Authenticate(ctx context.Context, req request.Request) (*identity.Identity, error) {
	p := m.Default()
	if p == nil {
		return nil, errors.Wrap(ErrInvalidCredentials, "[Manager.Authenticate] no default provider")
	}

	ident := p.Authenticate(ctx, req)
	if ident == nil {
		log.Debug().Str("provider", p.Name()).Str("reason", p.Error()).Msg("authentication failed")
		return nil, ErrInvalidCredentials
	}
	return ident, nil
}

// AuthenticateWithProviders tries each named provider in the given order
// and short-circuits on the first success. On total failure every
// provider-specific reason is replaced by one generic error so the response
// cannot be used as an enumeration oracle.
func (m *Manager) AuthenticateWithProviders(ctx context.Context, names []string, req request.Request) (*identity.Identity, error) {
	for _, name := range names {
		p, ok := m.Provider(name)
		if !ok {
			log.Debug().Str("provider", name).Msg("skipping unknown provider")
			continue
		}
		if ident := p.Authenticate(ctx, req); ident != nil {
			return ident, nil
		}
		log.Debug().Str("provider", name).Str("reason", p.Error()).Msg("provider declined request")
	}
	return nil, ErrInvalidCredentials
}

// IsAdmin resolves administrative privilege: the explicit flag first, then
// the identity's own provider, then a case-insensitive superuser role scan
// as a last resort. No positive signal means false.
func (m *Manager) IsAdmin(ctx context.Context, ident *identity.Identity) bool {
	if ident == nil {
		return false
	}
	if ident.IsAdmin {
		return true
	}
	if p, ok := m.Provider(ident.Provider); ok && p.IsAdmin(ctx, ident) {
		return true
	}
	return ident.IsSuperuser()
}

// TokenProvider exposes the named provider to the token layer.
func (m *Manager) TokenProvider(name string) (token.AuthProvider, bool) {
	p, ok := m.Provider(name)
	if !ok {
		return nil, false
	}
	return p, true
}

// TokenProviders returns all providers in registration order.
func (m *Manager) TokenProviders() []token.AuthProvider {
	m.lock.RLock()
	defer m.lock.RUnlock()

	providers := make([]token.AuthProvider, 0, len(m.order))
	for _, name := range m.order {
		providers = append(providers, m.providers[name])
	}
	return providers
}

// DefaultTokenProvider returns the default provider for the token layer.
func (m *Manager) DefaultTokenProvider() token.AuthProvider {
	p := m.Default()
	if p == nil {
		return nil
	}
	return p
}
