package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-core/cache"
	"github.com/jrsteele09/go-auth-core/cache/cachefakes"
	"github.com/jrsteele09/go-auth-core/session"
)

type enrichmentFixture struct {
	kv      *cachefakes.FakeKVCache
	perms   *cachefakes.FakePermissionSource
	manager *cache.Manager
	now     time.Time
}

func setupEnrichmentFixture(t *testing.T) *enrichmentFixture {
	t.Helper()

	f := &enrichmentFixture{
		kv:    cachefakes.NewFakeKVCache(),
		perms: cachefakes.NewFakePermissionSource(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.kv.NowFunc = func() time.Time { return f.now }

	manager, err := cache.NewManager(f.kv,
		cache.WithPermissionSource(f.perms),
		cache.WithPermissionTTL(5*time.Minute),
		cache.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.manager = manager
	return f
}

func (f *enrichmentFixture) record(id, user string) *session.Record {
	rec := cachedRecord(id, user, "jwt")
	rec.CreatedAt = f.now
	rec.AccessExpiresAt = f.now.Add(15 * time.Minute)
	rec.RefreshExpiresAt = f.now.Add(24 * time.Hour)
	return rec
}

func TestPutSessionEnrichesPermissions(t *testing.T) {
	f := setupEnrichmentFixture(t)
	f.perms.SetUser("user-1", map[string][]string{"articles": {"read", "write"}}, []string{"editor"})
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, f.record("ses_1", "user-1")))

	rec, err := f.manager.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	require.Equal(t, []string{"editor"}, rec.Roles)
	require.Equal(t, []string{"read", "write"}, rec.Permissions["articles"])
	require.NotEmpty(t, rec.PermissionHash)
	require.False(t, rec.PermissionsLoadedAt.IsZero())
	require.True(t, f.manager.AreSessionPermissionsValid(rec))
}

func TestPermissionsGoStaleByTTL(t *testing.T) {
	f := setupEnrichmentFixture(t)
	f.perms.SetUser("user-1", map[string][]string{"articles": {"read"}}, []string{"viewer"})
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, f.record("ses_1", "user-1")))
	rec, err := f.manager.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	require.True(t, f.manager.AreSessionPermissionsValid(rec))

	f.now = f.now.Add(6 * time.Minute)
	require.False(t, f.manager.AreSessionPermissionsValid(rec))
}

func TestPermissionsGoStaleByHashDrift(t *testing.T) {
	f := setupEnrichmentFixture(t)
	f.perms.SetUser("user-1", map[string][]string{"articles": {"read"}}, []string{"viewer"})

	rec := f.record("ses_1", "user-1")
	require.NoError(t, f.manager.PutSession(context.Background(), rec))
	require.True(t, f.manager.AreSessionPermissionsValid(rec))

	// Out-of-band mutation of the authorization data must be detected even
	// though the TTL has not elapsed.
	rec.Roles = append(rec.Roles, "injected")
	require.False(t, f.manager.AreSessionPermissionsValid(rec))
}

func TestGetOptimizedSessionReloadsStalePermissions(t *testing.T) {
	f := setupEnrichmentFixture(t)
	f.perms.SetUser("user-1", map[string][]string{"articles": {"read"}}, []string{"viewer"})
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, f.record("ses_1", "user-1")))
	loadsAfterPut := f.perms.Calls

	// Fresh permissions are served without consulting the source again.
	_, err := f.manager.GetOptimizedSession(ctx, "ses_1")
	require.NoError(t, err)
	require.Equal(t, loadsAfterPut, f.perms.Calls)

	// After the TTL the permissions are reloaded synchronously, and the
	// caller sees the new data at once.
	f.now = f.now.Add(6 * time.Minute)
	f.perms.SetUser("user-1", map[string][]string{"articles": {"read", "delete"}}, []string{"moderator"})

	rec, err := f.manager.GetOptimizedSession(ctx, "ses_1")
	require.NoError(t, err)
	require.Equal(t, loadsAfterPut+1, f.perms.Calls)
	require.Equal(t, []string{"moderator"}, rec.Roles)
	require.Equal(t, []string{"read", "delete"}, rec.Permissions["articles"])

	// The rewrite is persisted: the next read is fresh again.
	cached, err := f.manager.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	require.True(t, f.manager.AreSessionPermissionsValid(cached))
}

func TestBatchLoadUserPermissions(t *testing.T) {
	f := setupEnrichmentFixture(t)
	f.perms.SetUser("user-1", map[string][]string{"a": {"read"}}, []string{"r1"})
	f.perms.SetUser("user-2", map[string][]string{"b": {"write"}}, []string{"r2"})
	ctx := context.Background()

	result, err := f.manager.BatchLoadUserPermissions(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, []string{"r1"}, result["user-1"].Roles)
	require.Equal(t, []string{"r2"}, result["user-2"].Roles)
	firstRound := f.perms.Calls

	// The second batch is served entirely from the per-user cache.
	result, err = f.manager.BatchLoadUserPermissions(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, firstRound, f.perms.Calls)

	empty, err := f.manager.BatchLoadUserPermissions(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestPermissionHashIsOrderInsensitive(t *testing.T) {
	first := cache.PermissionHash(map[string][]string{
		"articles": {"write", "read"},
		"users":    {"list"},
	}, []string{"editor", "viewer"})
	second := cache.PermissionHash(map[string][]string{
		"users":    {"list"},
		"articles": {"read", "write"},
	}, []string{"viewer", "editor"})

	require.Equal(t, first, second)
	require.NotEqual(t, first, cache.PermissionHash(nil, []string{"viewer"}))
}
