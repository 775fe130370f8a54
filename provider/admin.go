package provider

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/password"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// NameAdmin is the registry name of the admin-elevated provider.
const NameAdmin = "admin"

// genericDenial is the only failure reason admin authentication ever
// exposes. The specific reason (bad credentials vs missing privilege) is
// logged but never returned.
const genericDenial = "invalid credentials"

// AdminProvider authenticates username+password credentials and requires
// the resolved identity to hold the superuser role. Missing privilege is an
// authentication failure, not merely a privilege failure.
type AdminProvider struct {
	identities identity.CredentialRepo
	hasher     password.Hasher
	codec      *token.Codec
	lastError
}

var _ Provider = (*AdminProvider)(nil)

func NewAdminProvider(identities identity.CredentialRepo, hasher password.Hasher, codec *token.Codec) (*AdminProvider, error) {
	if identities == nil {
		return nil, errors.New("[NewAdminProvider] identity repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewAdminProvider] password hasher is required")
	}
	if codec == nil {
		return nil, errors.New("[NewAdminProvider] codec is required")
	}
	return &AdminProvider{identities: identities, hasher: hasher, codec: codec}, nil
}

func (p *AdminProvider) Name() string { return NameAdmin }

// Authenticate requires a username (not an email) and password, verified
// against the stored digest, and the superuser role. Invalid credentials
// and insufficient privilege are logged distinctly but produce the same
// denial.
func (p *AdminProvider) Authenticate(_ context.Context, req request.Request) *identity.Identity {
	p.clear()

	username, pass := credentials(req)
	if username == "" || pass == "" || strings.Contains(username, "@") {
		log.Warn().Str("provider", NameAdmin).Str("ip", req.ClientIP()).
			Msg("admin auth rejected: username and password required")
		p.fail(genericDenial)
		return nil
	}

	ident, err := p.identities.GetByUsername(username)
	if err != nil {
		log.Warn().Str("provider", NameAdmin).Str("username", username).
			Msg("admin auth rejected: invalid credentials")
		p.fail(genericDenial)
		return nil
	}

	digest, err := p.identities.PasswordDigest(ident.UUID)
	if err != nil || !p.hasher.Verify(pass, digest) {
		log.Warn().Str("provider", NameAdmin).Str("username", username).
			Msg("admin auth rejected: invalid credentials")
		p.fail(genericDenial)
		return nil
	}

	if p.hasher.NeedsRehash(digest) {
		if rehashed, rehashErr := p.hasher.Hash(pass); rehashErr == nil {
			if err := p.identities.SetPasswordDigest(ident.UUID, rehashed); err != nil {
				log.Warn().Err(err).Str("username", username).Msg("password rehash not persisted")
			}
		}
	}

	if !ident.IsSuperuser() {
		log.Warn().Str("provider", NameAdmin).Str("username", username).
			Msg("admin auth rejected: insufficient privilege")
		p.fail(genericDenial)
		return nil
	}

	ident.IsAdmin = true
	ident.Provider = NameAdmin

	markAuthenticated(req, ident)
	return ident
}

func (p *AdminProvider) IsAdmin(_ context.Context, ident *identity.Identity) bool {
	return ident != nil && (ident.IsAdmin || ident.IsSuperuser())
}

// Admin sessions carry ordinary signed access tokens.
func (p *AdminProvider) ValidateToken(_ context.Context, tokenStr string) bool {
	return p.codec.Verify(tokenStr)
}

func (p *AdminProvider) CanHandleToken(tokenStr string) bool {
	_, err := p.codec.Decode(tokenStr)
	return err == nil
}

func (p *AdminProvider) GenerateTokens(_ context.Context, ident *identity.Identity, accessTTL, _ time.Duration) (*token.Pair, error) {
	claims := identityClaims(ident)
	claims["is_admin"] = true

	accessToken, err := p.codec.Generate(claims, accessTTL)
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

func (p *AdminProvider) RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*token.Pair, error) {
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
