package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/directory"
	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// NameDirectory is the registry name of the directory (LDAP) provider.
const NameDirectory = "ldap"

// DirectoryProvider authenticates against an external directory service and
// maps directory entries to local identities. Its tokens are self-describing
// base64 JSON envelopes, not signed JWTs.
type DirectoryProvider struct {
	client       directory.Client
	attrs        directory.AttributeMap
	groups       *directory.GroupRoleTable
	identities   identity.Repo
	codec        *token.Codec
	usernameAttr string
	nowFunc      func() time.Time
	lastError
}

var _ Provider = (*DirectoryProvider)(nil)

// DirectoryProviderOption modifies a DirectoryProvider instance.
type DirectoryProviderOption func(*DirectoryProvider)

// WithDirectoryNowFunc sets the time source (primarily for testing).
func WithDirectoryNowFunc(now func() time.Time) DirectoryProviderOption {
	return func(p *DirectoryProvider) {
		p.nowFunc = now
	}
}

// WithUsernameAttribute overrides the directory attribute used to find the
// authenticated entry (default "uid").
func WithUsernameAttribute(attr string) DirectoryProviderOption {
	return func(p *DirectoryProvider) {
		p.usernameAttr = attr
	}
}

func NewDirectoryProvider(
	client directory.Client,
	attrs directory.AttributeMap,
	groups *directory.GroupRoleTable,
	identities identity.Repo,
	codec *token.Codec,
	options ...DirectoryProviderOption,
) (*DirectoryProvider, error) {
	if client == nil {
		return nil, errors.New("[NewDirectoryProvider] directory client is required")
	}
	if identities == nil {
		return nil, errors.New("[NewDirectoryProvider] identity repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewDirectoryProvider] codec is required")
	}

	p := &DirectoryProvider{
		client:       client,
		attrs:        attrs,
		groups:       groups,
		identities:   identities,
		codec:        codec,
		usernameAttr: "uid",
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *DirectoryProvider) Name() string { return NameDirectory }

// Authenticate binds to the directory with the supplied credentials, maps
// the entry's attributes and group memberships onto an identity, and
// finds-or-creates the local record.
func (p *DirectoryProvider) Authenticate(ctx context.Context, req request.Request) *identity.Identity {
	p.clear()

	username, password := credentials(req)
	if username == "" || password == "" {
		p.fail("missing directory credentials")
		return nil
	}

	if err := p.client.Bind(username, password); err != nil {
		p.fail("directory bind rejected: " + err.Error())
		return nil
	}

	attrs, err := p.client.FindUser(p.usernameAttr, username)
	if err != nil {
		p.fail("directory entry lookup failed: " + err.Error())
		return nil
	}

	ident := &identity.Identity{Username: username, Provider: NameDirectory}
	p.attrs.Apply(attrs, ident)

	groups, err := p.client.ListGroups(username)
	if err != nil {
		p.fail("directory group lookup failed: " + err.Error())
		return nil
	}
	if p.groups != nil {
		ident.Roles = p.groups.Resolve(groups)
	}

	local, err := p.findOrCreate(ident)
	if err != nil {
		p.fail("local identity resolution failed: " + err.Error())
		return nil
	}

	markAuthenticated(req, local)
	return local
}

// findOrCreate merges the directory-derived identity into the local record,
// creating one on first login.
func (p *DirectoryProvider) findOrCreate(ident *identity.Identity) (*identity.Identity, error) {
	existing, err := p.identities.GetByUsername(ident.Username)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, err
		}
		ident.UUID = uuid.New().String()
		if err := p.identities.Upsert(ident); err != nil {
			return nil, err
		}
		log.Debug().Str("username", ident.Username).Msg("created local identity from directory entry")
		return ident, nil
	}

	existing.Roles = ident.Roles
	existing.Provider = NameDirectory
	if ident.HasProfile() {
		existing.Profile = ident.Profile
	}
	if ident.Email != "" {
		existing.Email = ident.Email
	}
	if err := p.identities.Upsert(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// IsAdmin resolves through the directory-derived roles; fail closed.
func (p *DirectoryProvider) IsAdmin(_ context.Context, ident *identity.Identity) bool {
	return ident != nil && (ident.IsAdmin || ident.IsSuperuser())
}

func (p *DirectoryProvider) ValidateToken(_ context.Context, tokenStr string) bool {
	env, err := token.DecodeEnvelope(tokenStr)
	if err != nil || env.AuthMethod != token.AuthMethodLDAP {
		return false
	}
	return !env.Expired(p.nowFunc())
}

// CanHandleToken inspects for the envelope marker only.
func (p *DirectoryProvider) CanHandleToken(tokenStr string) bool {
	return token.IsEnvelope(tokenStr)
}

func (p *DirectoryProvider) GenerateTokens(_ context.Context, ident *identity.Identity, accessTTL, _ time.Duration) (*token.Pair, error) {
	now := p.nowFunc()
	accessToken, err := token.EncodeEnvelope(token.Envelope{
		AuthMethod: token.AuthMethodLDAP,
		Subject:    ident.UUID,
		Username:   ident.Username,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(accessTTL).Unix(),
	})
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

func (p *DirectoryProvider) RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*token.Pair, error) {
	if sess == nil || sess.Status != session.StatusActive || sess.RefreshToken != refreshToken {
		return nil, nil
	}

	env, err := token.DecodeEnvelope(sess.AccessToken)
	if err != nil {
		return nil, err
	}

	ident := &identity.Identity{UUID: sess.UserUUID, Username: env.Username}
	return p.GenerateTokens(ctx, ident, accessTTL, refreshTTL)
}
