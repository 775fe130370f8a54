package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-core/cache"
	"github.com/jrsteele09/go-auth-core/cache/cachefakes"
	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/identity/repofakes"
	"github.com/jrsteele09/go-auth-core/provider"
	"github.com/jrsteele09/go-auth-core/provider/providerfakes"
	"github.com/jrsteele09/go-auth-core/request/requestfakes"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/session/storefakes"
	"github.com/jrsteele09/go-auth-core/token"
)

type managerFixture struct {
	store    *storefakes.FakeSessionStore
	kv       *cachefakes.FakeKVCache
	cacheMgr *cache.Manager
	fake     *providerfakes.FakeProvider
	manager  *token.Manager
}

func setupManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	codec := newTestCodec(t)
	fake := &providerfakes.FakeProvider{ProviderName: "fake", TokenPrefix: "tok_"}

	registry, err := provider.NewManager(fake)
	require.NoError(t, err)

	kv := cachefakes.NewFakeKVCache()
	cacheMgr, err := cache.NewManager(kv)
	require.NoError(t, err)

	store := storefakes.NewFakeSessionStore()
	storage, err := session.NewStorageService(store, cacheMgr)
	require.NoError(t, err)

	manager, err := token.NewManager(codec, registry, storage, store, cacheMgr)
	require.NoError(t, err)

	return &managerFixture{
		store:    store,
		kv:       kv,
		cacheMgr: cacheMgr,
		fake:     fake,
		manager:  manager,
	}
}

func testIdentity() *identity.Identity {
	return &identity.Identity{
		UUID:     "user-1",
		Username: "jdoe",
		Email:    "  JDoe@Example.COM ",
		Provider: "fake",
		Roles:    []string{"editor"},
	}
}

func TestCreateUserSessionPersistsBothTiers(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	payload, err := f.manager.CreateUserSession(ctx, testIdentity(), token.Meta{
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	require.Equal(t, token.TokenTypeBearer, payload.TokenType)
	require.NotEmpty(t, payload.AccessToken)
	require.NotEmpty(t, payload.RefreshToken)
	require.Equal(t, "user-1", payload.User.ID)

	durable, err := f.store.ByAccessToken(ctx, payload.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.StatusActive, durable.Status)
	require.Equal(t, "fake", durable.Provider)
	require.Equal(t, "10.0.0.1", durable.IPAddress)
	require.NotEmpty(t, durable.TokenFingerprint)

	cached, err := f.cacheMgr.GetSessionByToken(ctx, payload.AccessToken)
	require.NoError(t, err)
	require.Equal(t, durable.ID, cached.ID)
	require.Equal(t, []string{"editor"}, cached.Roles)
}

func TestCreateUserSessionRequiresUUID(t *testing.T) {
	f := setupManagerFixture(t)

	_, err := f.manager.CreateUserSession(context.Background(), &identity.Identity{Username: "jdoe"}, token.Meta{})
	require.ErrorIs(t, err, token.ErrSessionCreation)

	_, err = f.manager.CreateUserSession(context.Background(), nil, token.Meta{})
	require.ErrorIs(t, err, token.ErrSessionCreation)
}

func TestCreateUserSessionNormalizesIdentity(t *testing.T) {
	f := setupManagerFixture(t)

	payload, err := f.manager.CreateUserSession(context.Background(), testIdentity(), token.Meta{})
	require.NoError(t, err)
	require.Equal(t, "jdoe@example.com", payload.User.Email)
}

func TestRememberMeExtendsRefreshWindow(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	standard, err := f.manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)

	remembered := testIdentity()
	remembered.RememberMe = true
	long, err := f.manager.CreateUserSession(ctx, remembered, token.Meta{})
	require.NoError(t, err)

	standardRow, err := f.store.ByAccessToken(ctx, standard.AccessToken)
	require.NoError(t, err)
	longRow, err := f.store.ByAccessToken(ctx, long.AccessToken)
	require.NoError(t, err)

	require.True(t, longRow.RememberMe)
	require.True(t, longRow.RefreshExpiresAt.After(standardRow.RefreshExpiresAt.Add(20*24*time.Hour)))
	require.WithinDuration(t, standardRow.AccessExpiresAt, longRow.AccessExpiresAt, time.Minute)
}

func TestRevocationIsImmediatelyVisible(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	payload, err := f.manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)
	require.True(t, f.manager.ValidateAccessToken(ctx, payload.AccessToken))
	require.False(t, f.manager.IsTokenRevoked(ctx, payload.AccessToken))

	require.NoError(t, f.manager.RevokeSession(ctx, payload.AccessToken))

	require.True(t, f.manager.IsTokenRevoked(ctx, payload.AccessToken))
	require.False(t, f.manager.ValidateAccessToken(ctx, payload.AccessToken))

	// The cache projection is purged proactively.
	_, err = f.cacheMgr.GetSessionByToken(ctx, payload.AccessToken)
	require.Error(t, err)
}

func TestValidateAccessTokenUnroutedToken(t *testing.T) {
	f := setupManagerFixture(t)

	require.False(t, f.manager.ValidateAccessToken(context.Background(), "unrecognized-shape"))
	require.False(t, f.manager.ValidateAccessToken(context.Background(), ""))
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	payload, err := f.manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)

	pair, err := f.manager.RefreshTokens(ctx, payload.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.NotEqual(t, payload.AccessToken, pair.AccessToken)
	require.NotEqual(t, payload.RefreshToken, pair.RefreshToken)

	// The row now carries the successor pair.
	rotated, err := f.store.ByAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed refresh token buys nothing a second time.
	replay, err := f.manager.RefreshTokens(ctx, payload.RefreshToken)
	require.NoError(t, err)
	require.Nil(t, replay)
}

func TestRefreshUnknownTokenYieldsNothing(t *testing.T) {
	f := setupManagerFixture(t)

	pair, err := f.manager.RefreshTokens(context.Background(), "never-issued")
	require.NoError(t, err)
	require.Nil(t, pair)

	pair, err = f.manager.RefreshTokens(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, pair)
}

func TestRefreshKeepsConfiguredAccessTTL(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	now := time.Now()
	codec := newTestCodec(t)
	registry, err := provider.NewManager(f.fake)
	require.NoError(t, err)
	storage, err := session.NewStorageService(f.store, f.cacheMgr)
	require.NoError(t, err)
	manager, err := token.NewManager(codec, registry, storage, f.store, f.cacheMgr,
		token.WithAccessTTL(15*time.Minute),
		token.WithManagerNowFunc(func() time.Time { return now }))
	require.NoError(t, err)

	payload, err := manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)

	// Lifetimes stay pinned to the configured TTL across rotations instead
	// of stretching with session age.
	refresh := payload.RefreshToken
	for i := 0; i < 2; i++ {
		now = now.Add(10 * time.Minute)
		pair, err := manager.RefreshTokens(ctx, refresh)
		require.NoError(t, err)
		require.NotNil(t, pair)
		require.Equal(t, int((15 * time.Minute).Seconds()), pair.ExpiresIn)

		row, err := f.store.ByAccessToken(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, now.Add(15*time.Minute), row.AccessExpiresAt)
		refresh = pair.RefreshToken
	}
}

func TestRevocationCheckFailsClosedOnStoreError(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	payload, err := f.manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)
	require.True(t, f.manager.ValidateAccessToken(ctx, payload.AccessToken))

	f.store.ByAccessTokenErr = errors.New("connection refused")
	require.True(t, f.manager.IsTokenRevoked(ctx, payload.AccessToken))
	require.False(t, f.manager.ValidateAccessToken(ctx, payload.AccessToken))

	// Absence of a row stays distinct from an outage.
	f.store.ByAccessTokenErr = nil
	require.False(t, f.manager.IsTokenRevoked(ctx, "tok_sessionless"))
}

func TestCreateUserSessionBackfillsProfile(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	repo := repofakes.NewFakeIdentityRepo()
	require.NoError(t, repo.Upsert(&identity.Identity{
		UUID:    "user-1",
		Email:   "jdoe@example.com",
		Profile: identity.Profile{FirstName: "John", LastName: "Doe"},
	}))

	codec := newTestCodec(t)
	registry, err := provider.NewManager(f.fake)
	require.NoError(t, err)
	storage, err := session.NewStorageService(f.store, f.cacheMgr)
	require.NoError(t, err)
	manager, err := token.NewManager(codec, registry, storage, f.store, f.cacheMgr,
		token.WithIdentityRepo(repo))
	require.NoError(t, err)

	sparse := &identity.Identity{UUID: "user-1", Username: "jdoe", Provider: "fake"}
	payload, err := manager.CreateUserSession(ctx, sparse, token.Meta{})
	require.NoError(t, err)
	require.Equal(t, "jdoe@example.com", payload.User.Email)
	require.Equal(t, "John", payload.User.GivenName)
	require.Equal(t, "Doe", payload.User.FamilyName)
}

func TestExplicitProviderOverridesRouting(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	alt := &providerfakes.FakeProvider{ProviderName: "alt", TokenPrefix: "alt_"}
	codec := newTestCodec(t)
	registry, err := provider.NewManager(f.fake, alt)
	require.NoError(t, err)
	storage, err := session.NewStorageService(f.store, f.cacheMgr)
	require.NoError(t, err)
	manager, err := token.NewManager(codec, registry, storage, f.store, f.cacheMgr)
	require.NoError(t, err)

	// Validation: the named provider is authoritative, shape-probing is
	// bypassed, and an unknown name validates nothing.
	require.True(t, manager.ValidateAccessToken(ctx, "tok_sample"))
	require.False(t, manager.ValidateAccessToken(ctx, "tok_sample", "alt"))
	require.True(t, manager.ValidateAccessToken(ctx, "alt_sample", "alt"))
	require.False(t, manager.ValidateAccessToken(ctx, "tok_sample", "nonexistent"))

	// Refresh: the named provider mints the successor pair even though the
	// session was established by another.
	payload, err := manager.CreateUserSession(ctx, testIdentity(), token.Meta{})
	require.NoError(t, err)

	pair, err := manager.RefreshTokens(ctx, payload.RefreshToken, "alt")
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Contains(t, pair.AccessToken, "alt_")
}

func TestSessionByAccessTokenFallsBackToStore(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()
	now := time.Now()

	sess := &session.Session{
		ID:               "ses_fallback",
		UserUUID:         "user-1",
		AccessToken:      "tok_direct",
		RefreshToken:     "tok_direct_refresh",
		Provider:         "fake",
		Status:           session.StatusActive,
		CreatedAt:        now,
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, f.store.Insert(ctx, sess))

	found, err := f.manager.SessionByAccessToken(ctx, "tok_direct")
	require.NoError(t, err)
	require.Equal(t, "ses_fallback", found.ID)

	// The store hit back-fills the token mapping.
	id, err := f.cacheMgr.SessionIDByToken(ctx, "tok_direct")
	require.NoError(t, err)
	require.Equal(t, "ses_fallback", id)
}

func TestExtractTokenFromRequest(t *testing.T) {
	f := setupManagerFixture(t)

	req := requestfakes.NewFakeRequest()
	req.Headers["Authorization"] = "Bearer header-token"
	require.Equal(t, "header-token", f.manager.ExtractTokenFromRequest(req))

	req = requestfakes.NewFakeRequest()
	req.SetAttribute("HTTP_AUTHORIZATION", "bearer attr-token")
	require.Equal(t, "attr-token", f.manager.ExtractTokenFromRequest(req))

	req = requestfakes.NewFakeRequest()
	req.SetAttribute("REDIRECT_HTTP_AUTHORIZATION", "Bearer redirect-token")
	require.Equal(t, "redirect-token", f.manager.ExtractTokenFromRequest(req))

	req = requestfakes.NewFakeRequest()
	req.QueryParams["token"] = "query-token"
	require.Equal(t, "query-token", f.manager.ExtractTokenFromRequest(req))

	require.Empty(t, f.manager.ExtractTokenFromRequest(requestfakes.NewFakeRequest()))
}

func TestGenerateTokenPairDelegatesToProvider(t *testing.T) {
	f := setupManagerFixture(t)

	pair, err := f.manager.GenerateTokenPair(context.Background(), testIdentity())
	require.NoError(t, err)
	require.Contains(t, pair.AccessToken, "tok_")

	_, err = f.manager.GenerateTokenPair(context.Background(), &identity.Identity{})
	require.ErrorIs(t, err, token.ErrSessionCreation)
}
