package token

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
)

// ErrSessionCreation is returned when a session cannot be established for an
// authenticated identity.
var ErrSessionCreation = errors.New("session creation failed")

// Default token lifetimes. Remember-me stretches the refresh window only;
// access tokens stay short-lived either way.
const (
	DefaultAccessTTL          = 15 * time.Minute
	DefaultRefreshTTL         = 7 * 24 * time.Hour
	DefaultRememberRefreshTTL = 30 * 24 * time.Hour
)

// AuthProvider is the token-lifecycle slice of an authentication provider.
// The provider registry satisfies it for every registered provider.
type AuthProvider interface {
	Name() string
	ValidateToken(ctx context.Context, tokenStr string) bool
	CanHandleToken(tokenStr string) bool
	GenerateTokens(ctx context.Context, ident *identity.Identity, accessTTL, refreshTTL time.Duration) (*Pair, error)
	RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*Pair, error)
}

// ProviderRegistry resolves providers for token routing. TokenProviders
// returns them in registration order, which is the routing order.
type ProviderRegistry interface {
	TokenProvider(name string) (AuthProvider, bool)
	TokenProviders() []AuthProvider
	DefaultTokenProvider() AuthProvider
}

// SessionCache is the cache-tier slice the token manager uses for fast-path
// lookups and proactive invalidation. The session cache manager satisfies
// it.
type SessionCache interface {
	PutSession(ctx context.Context, rec *session.Record) error
	GetSessionByToken(ctx context.Context, accessToken string) (*session.Record, error)
	SessionIDByToken(ctx context.Context, tokenStr string) (string, error)
	PutTokenMapping(ctx context.Context, tokenStr, sessionID string, remaining time.Duration) error
	DeleteTokenEntries(ctx context.Context, accessToken, refreshToken string) error
	DestroySession(ctx context.Context, id string) error
}

// Meta carries per-request session metadata recorded for audit.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Manager owns the token lifecycle: pair generation, session establishment,
// validation, refresh rotation, and revocation. Token format questions are
// delegated to the provider that issued the token; the durable store is
// authoritative for revocation.
type Manager struct {
	codec      *Codec
	registry   ProviderRegistry
	storage    *session.StorageService
	store      session.Store
	cache      SessionCache
	identities identity.Repo // optional
	nowFunc    func() time.Time
	accessTTL  time.Duration

	refreshTTL         time.Duration
	rememberRefreshTTL time.Duration
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTTL = ttl
	}
}

// WithRefreshTTL sets the standard and remember-me refresh windows.
func WithRefreshTTL(standard, remember time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTTL = standard
		m.rememberRefreshTTL = remember
	}
}

// WithIdentityRepo wires the user directory of record so sessions created
// from a sparse identity can be backfilled with the stored profile.
func WithIdentityRepo(repo identity.Repo) ManagerOption {
	return func(m *Manager) {
		m.identities = repo
	}
}

// WithManagerNowFunc sets the time source (primarily for testing).
func WithManagerNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates the token lifecycle manager.
func NewManager(
	codec *Codec,
	registry ProviderRegistry,
	storage *session.StorageService,
	store session.Store,
	cache SessionCache,
	options ...ManagerOption,
) (*Manager, error) {
	if codec == nil {
		return nil, errors.New("[NewManager] codec is required")
	}
	if registry == nil {
		return nil, errors.New("[NewManager] provider registry is required")
	}
	if storage == nil {
		return nil, errors.New("[NewManager] storage service is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] session store is required")
	}
	if cache == nil {
		return nil, errors.New("[NewManager] session cache is required")
	}

	m := &Manager{
		codec:              codec,
		registry:           registry,
		storage:            storage,
		store:              store,
		cache:              cache,
		nowFunc:            time.Now,
		accessTTL:          DefaultAccessTTL,
		refreshTTL:         DefaultRefreshTTL,
		rememberRefreshTTL: DefaultRememberRefreshTTL,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// providerFor returns the identity's own provider, or the default when the
// identity names none.
func (m *Manager) providerFor(name string) (AuthProvider, error) {
	if name != "" {
		if p, ok := m.registry.TokenProvider(name); ok {
			return p, nil
		}
	}
	if p := m.registry.DefaultTokenProvider(); p != nil {
		return p, nil
	}
	return nil, errors.Errorf("[Manager.providerFor] no provider for %q and no default", name)
}

// GenerateTokenPair issues an access/refresh pair for the identity via its
// provider without creating a session. Callers that need revocability go
// through CreateUserSession instead.
func (m *Manager) GenerateTokenPair(ctx context.Context, ident *identity.Identity) (*Pair, error) {
	if ident == nil || ident.UUID == "" {
		return nil, errors.Wrap(ErrSessionCreation, "[Manager.GenerateTokenPair] identity has no uuid")
	}
	p, err := m.providerFor(ident.Provider)
	if err != nil {
		return nil, err
	}
	pair, err := p.GenerateTokens(ctx, ident, m.accessTTL, m.refreshTTL)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GenerateTokenPair] GenerateTokens")
	}
	return pair, nil
}

// CreateUserSession issues a token pair for the authenticated identity and
// persists the backing session through the two-tier storage service. The
// returned payload is OAuth-shaped and ready for serialization.
func (m *Manager) CreateUserSession(ctx context.Context, ident *identity.Identity, meta Meta) (*SessionPayload, error) {
	if ident == nil || ident.UUID == "" {
		return nil, errors.Wrap(ErrSessionCreation, "[Manager.CreateUserSession] identity has no uuid")
	}

	normalizeIdentity(ident)
	m.backfillIdentity(ident)

	p, err := m.providerFor(ident.Provider)
	if err != nil {
		return nil, errors.Wrap(ErrSessionCreation, err.Error())
	}

	refreshTTL := m.refreshTTL
	if ident.RememberMe {
		refreshTTL = m.rememberRefreshTTL
	}

	pair, err := p.GenerateTokens(ctx, ident, m.accessTTL, refreshTTL)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateUserSession] GenerateTokens")
	}

	now := m.nowFunc()
	rec := &session.Record{
		Session: session.Session{
			ID:               "ses_" + uuid.New().String(),
			UserUUID:         ident.UUID,
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			TokenFingerprint: m.codec.Fingerprint(pair.AccessToken),
			Provider:         p.Name(),
			Status:           session.StatusActive,
			CreatedAt:        now,
			AccessExpiresAt:  now.Add(m.accessTTL),
			RefreshExpiresAt: now.Add(refreshTTL),
			IPAddress:        meta.IPAddress,
			UserAgent:        meta.UserAgent,
			RememberMe:       ident.RememberMe,
			LastActivity:     now,
		},
		Roles:       ident.Roles,
		Permissions: ident.Permissions,
	}

	if err := m.storage.StoreSession(ctx, rec); err != nil {
		return nil, errors.Wrap(ErrSessionCreation, err.Error())
	}

	log.Info().Str("session_id", rec.ID).Str("user_uuid", ident.UUID).
		Str("provider", rec.Provider).Bool("remember_me", ident.RememberMe).
		Msg("session created")

	return &SessionPayload{
		AccessToken:  pair.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		User:         ident.PublicUser(),
	}, nil
}

// ValidateAccessToken routes the token to an explicitly named provider when
// one is given, otherwise to the first provider that recognizes its shape,
// and requires both provider validity and the absence of a durable
// revocation. A token no provider claims is invalid.
func (m *Manager) ValidateAccessToken(ctx context.Context, tokenStr string, providerName ...string) bool {
	if tokenStr == "" {
		return false
	}
	if len(providerName) > 0 && providerName[0] != "" {
		p, ok := m.registry.TokenProvider(providerName[0])
		if !ok {
			return false
		}
		return p.ValidateToken(ctx, tokenStr) && !m.IsTokenRevoked(ctx, tokenStr)
	}
	for _, p := range m.registry.TokenProviders() {
		if !p.CanHandleToken(tokenStr) {
			continue
		}
		return p.ValidateToken(ctx, tokenStr) && !m.IsTokenRevoked(ctx, tokenStr)
	}
	return false
}

// RefreshTokens exchanges a refresh token for a new pair and rotates the
// session row with a compare-and-swap on the old refresh token. The optional
// provider name overrides the stored session provider. A refresh token that
// matches no active session, and the loser of a concurrent double-exchange,
// both get (nil, nil): absence is not distinguishable from a race loss.
func (m *Manager) RefreshTokens(ctx context.Context, refreshToken string, providerName ...string) (*Pair, error) {
	if refreshToken == "" {
		return nil, nil
	}

	sess, err := m.store.ByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(errors.Cause(err), session.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Manager.RefreshTokens] ByRefreshToken")
	}

	now := m.nowFunc()
	if now.After(sess.RefreshExpiresAt) {
		return nil, nil
	}

	name := sess.Provider
	if len(providerName) > 0 && providerName[0] != "" {
		name = providerName[0]
	}
	p, err := m.providerFor(name)
	if err != nil {
		return nil, err
	}

	refreshTTL := m.refreshTTL
	if sess.RememberMe {
		refreshTTL = m.rememberRefreshTTL
	}
	pair, err := p.RefreshTokens(ctx, refreshToken, sess, m.accessTTL, refreshTTL)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RefreshTokens] provider refresh")
	}
	if pair == nil {
		return nil, nil
	}

	rotation := session.Rotation{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenFingerprint: m.codec.Fingerprint(pair.AccessToken),
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		LastActivity:     now,
	}

	rows, err := m.store.UpdateRefreshTokens(ctx, refreshToken, rotation)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RefreshTokens] UpdateRefreshTokens")
	}
	if rows == 0 {
		log.Debug().Str("session_id", sess.ID).Msg("refresh rotation lost compare-and-swap")
		return nil, nil
	}

	if err := m.cache.DeleteTokenEntries(ctx, sess.AccessToken, refreshToken); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("stale token entries not purged")
	}
	rotated := *sess
	rotated.AccessToken = rotation.AccessToken
	rotated.RefreshToken = rotation.RefreshToken
	rotated.TokenFingerprint = rotation.TokenFingerprint
	rotated.AccessExpiresAt = rotation.AccessExpiresAt
	rotated.RefreshExpiresAt = rotation.RefreshExpiresAt
	rotated.LastActivity = rotation.LastActivity
	if err := m.cache.PutSession(ctx, &session.Record{Session: rotated}); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("rotated session not cached")
	}

	return pair, nil
}

// RevokeSession flips the session behind the access token to revoked in the
// durable store and proactively purges its cache entries, making the
// revocation visible to the next validation immediately.
func (m *Manager) RevokeSession(ctx context.Context, accessToken string) error {
	sess, err := m.store.ByAccessToken(ctx, accessToken)
	if err != nil {
		return errors.Wrap(err, "[Manager.RevokeSession] ByAccessToken")
	}

	rows, err := m.store.UpdateStatusByAccessToken(ctx, accessToken, session.StatusRevoked)
	if err != nil {
		return errors.Wrap(err, "[Manager.RevokeSession] UpdateStatusByAccessToken")
	}
	if rows == 0 {
		return errors.Wrap(session.ErrSessionNotFound, "[Manager.RevokeSession]")
	}

	if err := m.cache.DestroySession(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("revoked session cache purge failed")
	}
	if err := m.cache.DeleteTokenEntries(ctx, sess.AccessToken, sess.RefreshToken); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("revoked token entries not purged")
	}

	log.Info().Str("session_id", sess.ID).Str("user_uuid", sess.UserUUID).Msg("session revoked")
	return nil
}

// IsTokenRevoked consults the durable store only; cache contents never
// influence a revocation decision. A token with no session row is not
// revoked (providers whose tokens are sessionless stay valid on their own
// terms), but a store that cannot answer fails closed: an unreachable
// durable tier must not let revoked tokens back in.
func (m *Manager) IsTokenRevoked(ctx context.Context, accessToken string) bool {
	sess, err := m.store.ByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(errors.Cause(err), session.ErrSessionNotFound) {
			return false
		}
		log.Error().Err(err).Msg("revocation check failed, treating token as revoked")
		return true
	}
	return sess.Status == session.StatusRevoked
}

// SessionByAccessToken resolves the session behind an access token,
// preferring the cache token mapping and degrading to the durable store. A
// store hit back-fills the mapping for subsequent lookups.
func (m *Manager) SessionByAccessToken(ctx context.Context, accessToken string) (*session.Session, error) {
	if rec, err := m.cache.GetSessionByToken(ctx, accessToken); err == nil {
		return &rec.Session, nil
	}

	sess, err := m.store.ByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if remaining := sess.AccessExpiresAt.Sub(m.nowFunc()); remaining > 0 {
		if err := m.cache.PutTokenMapping(ctx, accessToken, sess.ID, remaining); err != nil {
			log.Debug().Err(err).Str("session_id", sess.ID).Msg("token mapping back-fill failed")
		}
	}
	return sess, nil
}

var bearerHeaderPattern = regexp.MustCompile(`(?i)^\s*bearer\s+(\S+)\s*$`)

// ExtractTokenFromRequest pulls the bearer token out of a request: the
// Authorization header first, then the gateway pass-through attributes some
// front ends stash it under, then a token query parameter as a last resort.
func (m *Manager) ExtractTokenFromRequest(req request.Request) string {
	if match := bearerHeaderPattern.FindStringSubmatch(req.Header("Authorization")); match != nil {
		return match[1]
	}

	for _, attr := range []string{"HTTP_AUTHORIZATION", "REDIRECT_HTTP_AUTHORIZATION"} {
		raw, _ := req.Attribute(attr).(string)
		if match := bearerHeaderPattern.FindStringSubmatch(raw); match != nil {
			return match[1]
		}
	}

	return strings.TrimSpace(req.QueryParam("token"))
}

// normalizeIdentity trims and canonicalizes the fields tokens and session
// rows are keyed on.
func normalizeIdentity(ident *identity.Identity) {
	ident.Username = strings.TrimSpace(ident.Username)
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	ident.UUID = strings.TrimSpace(ident.UUID)
}

// backfillIdentity fills a sparse caller-supplied identity from the user
// directory of record. A lookup failure leaves the identity as supplied.
func (m *Manager) backfillIdentity(ident *identity.Identity) {
	if m.identities == nil {
		return
	}
	if ident.Email != "" && ident.HasProfile() {
		return
	}

	stored, err := m.identities.GetByUUID(ident.UUID)
	if err != nil {
		log.Debug().Err(err).Str("user_uuid", ident.UUID).Msg("identity backfill lookup failed")
		return
	}
	if ident.Email == "" {
		ident.Email = stored.Email
	}
	if !ident.HasProfile() {
		ident.Profile = stored.Profile
	}
}
