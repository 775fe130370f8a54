package provider

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// NameAPIKey is the registry name of the API-key provider.
const NameAPIKey = "apikey"

// DefaultAPIKeyPrefix marks opaque API keys so they can be routed by shape.
const DefaultAPIKeyPrefix = "ak_"

// ErrNoTokenLifecycle is returned when a token-pair operation is requested
// from a provider whose credentials do not participate in bearer-session
// lifecycles.
var ErrNoTokenLifecycle = errors.New("provider does not issue token pairs")

// KeyStore resolves a presented API key to its identity.
type KeyStore interface {
	IdentityForKey(ctx context.Context, key string) (*identity.Identity, error)
}

// APIKeyProvider authenticates purely from a presented key. API keys have a
// lifecycle of their own: no session row backs their validity.
type APIKeyProvider struct {
	keys   KeyStore
	prefix string
	lastError
}

var _ Provider = (*APIKeyProvider)(nil)

func NewAPIKeyProvider(keys KeyStore, prefix string) (*APIKeyProvider, error) {
	if keys == nil {
		return nil, errors.New("[NewAPIKeyProvider] key store is required")
	}
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}
	return &APIKeyProvider{keys: keys, prefix: prefix}, nil
}

func (p *APIKeyProvider) Name() string { return NameAPIKey }

// Authenticate reads the key from the X-API-Key header, falling back to the
// bearer slot.
func (p *APIKeyProvider) Authenticate(ctx context.Context, req request.Request) *identity.Identity {
	p.clear()

	key := req.Header("X-API-Key")
	if key == "" {
		key = BearerToken(req)
	}
	if key == "" || !strings.HasPrefix(key, p.prefix) {
		p.fail("no api key in request")
		return nil
	}

	ident, err := p.keys.IdentityForKey(ctx, key)
	if err != nil {
		p.fail("api key lookup failed: " + err.Error())
		return nil
	}
	ident.Provider = NameAPIKey

	markAuthenticated(req, ident)
	return ident
}

func (p *APIKeyProvider) IsAdmin(_ context.Context, ident *identity.Identity) bool {
	return ident != nil && (ident.IsAdmin || ident.IsSuperuser())
}

func (p *APIKeyProvider) ValidateToken(ctx context.Context, tokenStr string) bool {
	if !strings.HasPrefix(tokenStr, p.prefix) {
		return false
	}
	_, err := p.keys.IdentityForKey(ctx, tokenStr)
	return err == nil
}

func (p *APIKeyProvider) CanHandleToken(tokenStr string) bool {
	return strings.HasPrefix(tokenStr, p.prefix)
}

func (p *APIKeyProvider) GenerateTokens(context.Context, *identity.Identity, time.Duration, time.Duration) (*token.Pair, error) {
	return nil, errors.Wrap(ErrNoTokenLifecycle, "[APIKeyProvider.GenerateTokens]")
}

func (p *APIKeyProvider) RefreshTokens(context.Context, string, *session.Session, time.Duration, time.Duration) (*token.Pair, error) {
	return nil, errors.Wrap(ErrNoTokenLifecycle, "[APIKeyProvider.RefreshTokens]")
}
