package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// NameJWT is the registry name of the JWT provider.
const NameJWT = "jwt"

// JWTProvider authenticates self-contained signed bearer tokens backed by a
// live session row.
type JWTProvider struct {
	codec    *token.Codec
	sessions SessionResolver
	admin    AdminChecker // optional
	nowFunc  func() time.Time
	lastError
}

var _ Provider = (*JWTProvider)(nil)

// JWTProviderOption modifies a JWTProvider instance.
type JWTProviderOption func(*JWTProvider)

// WithAdminChecker wires the external permission-system check preferred for
// admin resolution.
func WithAdminChecker(checker AdminChecker) JWTProviderOption {
	return func(p *JWTProvider) {
		p.admin = checker
	}
}

// WithJWTNowFunc sets the time source (primarily for testing).
func WithJWTNowFunc(now func() time.Time) JWTProviderOption {
	return func(p *JWTProvider) {
		p.nowFunc = now
	}
}

// NewJWTProvider creates the JWT strategy. The session resolver is wired
// after construction (the token manager and providers reference each other).
func NewJWTProvider(codec *token.Codec, options ...JWTProviderOption) (*JWTProvider, error) {
	if codec == nil {
		return nil, errors.New("[NewJWTProvider] codec is required")
	}
	p := &JWTProvider{codec: codec, nowFunc: time.Now}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// SetSessionResolver wires the token manager in after construction.
func (p *JWTProvider) SetSessionResolver(resolver SessionResolver) {
	p.sessions = resolver
}

func (p *JWTProvider) Name() string { return NameJWT }

// Authenticate extracts the bearer token, resolves its session and merges
// the token claims into an identity.
func (p *JWTProvider) Authenticate(ctx context.Context, req request.Request) *identity.Identity {
	p.clear()

	raw := BearerToken(req)
	if raw == "" {
		p.fail("no bearer token in request")
		return nil
	}
	if !p.codec.Verify(raw) {
		p.fail("token signature or expiry check failed")
		return nil
	}
	if p.sessions == nil {
		p.fail("session resolver not configured")
		return nil
	}

	sess, err := p.sessions.SessionByAccessToken(ctx, raw)
	if err != nil {
		p.fail("no active session for token: " + err.Error())
		return nil
	}
	if !sess.Active(p.nowFunc()) {
		p.fail("no active session for token: status " + string(sess.Status))
		return nil
	}

	claims, err := p.codec.Decode(raw)
	if err != nil {
		p.fail("token claims decode failed: " + err.Error())
		return nil
	}

	ident := identityFromClaims(claims)
	if ident.UUID == "" {
		ident.UUID = sess.UserUUID
	}
	ident.Provider = sess.Provider
	ident.RememberMe = sess.RememberMe

	markAuthenticated(req, ident)
	return ident
}

// IsAdmin prefers the external permission-system check. When that subsystem
// is unavailable it falls back to the is_admin claim (fail-open for this
// one flag only); everything else fails closed.
func (p *JWTProvider) IsAdmin(ctx context.Context, ident *identity.Identity) bool {
	if ident == nil {
		return false
	}
	if p.admin != nil {
		isAdmin, err := p.admin.IsAdmin(ctx, ident.UUID)
		if err == nil {
			return isAdmin
		}
		log.Warn().Err(err).Str("user_uuid", ident.UUID).
			Msg("permission subsystem unavailable, falling back to token claim")
	}
	return ident.IsAdmin
}

func (p *JWTProvider) ValidateToken(_ context.Context, tokenStr string) bool {
	return p.codec.Verify(tokenStr)
}

// CanHandleToken inspects structure only: three dot-separated segments with
// a decodable header carrying alg and typ.
func (p *JWTProvider) CanHandleToken(tokenStr string) bool {
	_, err := p.codec.Decode(tokenStr)
	return err == nil
}

func (p *JWTProvider) GenerateTokens(_ context.Context, ident *identity.Identity, accessTTL, refreshTTL time.Duration) (*token.Pair, error) {
	accessToken, err := p.codec.Generate(identityClaims(ident), accessTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := p.codec.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	return &token.Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(accessTTL.Seconds()),
	}, nil
}

// RefreshTokens mints a successor pair from the claims of the session's
// current access token.
func (p *JWTProvider) RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*token.Pair, error) {
	if sess == nil || sess.Status != session.StatusActive || sess.RefreshToken != refreshToken {
		return nil, nil
	}

	claims, err := p.codec.Decode(sess.AccessToken)
	if err != nil {
		return nil, err
	}
	ident := identityFromClaims(claims)
	if ident.UUID == "" {
		ident.UUID = sess.UserUUID
	}

	return p.GenerateTokens(ctx, ident, accessTTL, refreshTTL)
}
