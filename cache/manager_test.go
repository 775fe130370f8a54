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

type cacheFixture struct {
	kv      *cachefakes.FakeKVCache
	manager *cache.Manager
}

func setupCacheFixture(t *testing.T, options ...cache.ManagerOption) *cacheFixture {
	t.Helper()

	kv := cachefakes.NewFakeKVCache()
	manager, err := cache.NewManager(kv, options...)
	require.NoError(t, err)
	return &cacheFixture{kv: kv, manager: manager}
}

func cachedRecord(id, user, provider string) *session.Record {
	now := time.Now()
	return &session.Record{
		Session: session.Session{
			ID:               id,
			UserUUID:         user,
			AccessToken:      "access-" + id,
			RefreshToken:     "refresh-" + id,
			Provider:         provider,
			Status:           session.StatusActive,
			CreatedAt:        now,
			AccessExpiresAt:  now.Add(15 * time.Minute),
			RefreshExpiresAt: now.Add(24 * time.Hour),
		},
	}
}

func TestPutSessionSingleCanonicalEntry(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))

	// One canonical payload, two token pointers, one token mapping and two
	// index entries. No second full copy of the session exists.
	require.Equal(t, 6, f.kv.Len())

	byID, err := f.manager.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	byAccess, err := f.manager.GetSessionByToken(ctx, "access-ses_1")
	require.NoError(t, err)
	byRefresh, err := f.manager.GetSessionByRefreshToken(ctx, "refresh-ses_1")
	require.NoError(t, err)

	require.Equal(t, byID.ID, byAccess.ID)
	require.Equal(t, byID.ID, byRefresh.ID)
}

func TestPutSessionRejectsClosedRefreshWindow(t *testing.T) {
	f := setupCacheFixture(t)

	rec := cachedRecord("ses_1", "user-1", "jwt")
	rec.RefreshExpiresAt = time.Now().Add(-time.Minute)
	require.Error(t, f.manager.PutSession(context.Background(), rec))
	require.Zero(t, f.kv.Len())
}

func TestDestroySessionRemovesEverything(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	require.NoError(t, f.manager.DestroySession(ctx, "ses_1"))

	_, err := f.manager.GetSession(ctx, "ses_1")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = f.manager.GetSessionByToken(ctx, "access-ses_1")
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	ids, err := f.manager.GetSessionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, ids)

	// Destroying an absent session is a no-op.
	require.NoError(t, f.manager.DestroySession(ctx, "never-existed"))
}

func TestQuerySessionsByProvider(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_2", "user-2", "jwt")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_3", "user-1", "ldap")))

	// Nil filter materializes the whole index.
	all, err := f.manager.QuerySessionsByProvider(ctx, "jwt", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	filter := session.NewQueryFilter().Where("user_uuid", "user-1")
	matched, err := f.manager.QuerySessionsByProvider(ctx, "jwt", filter)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "ses_1", matched[0].ID)

	empty, err := f.manager.QuerySessionsByProvider(ctx, "saml", filter)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSecondaryIndexesTrackManySessions(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_2", "user-1", "ldap")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_3", "user-2", "jwt")))

	jwtIDs, err := f.manager.GetSessionsByProvider(ctx, "jwt")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ses_1", "ses_3"}, jwtIDs)

	userIDs, err := f.manager.GetSessionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ses_1", "ses_2"}, userIDs)

	// Re-putting the same session does not duplicate index entries.
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	jwtIDs, err = f.manager.GetSessionsByProvider(ctx, "jwt")
	require.NoError(t, err)
	require.Len(t, jwtIDs, 2)
}

func TestBatchGetSessionsSkipsMisses(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_2", "user-2", "jwt")))

	records, err := f.manager.BatchGetSessions(ctx, []string{"ses_1", "missing", "ses_2"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = f.manager.BatchGetSessions(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestInvalidateProviderSessions(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "ldap")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_2", "user-2", "ldap")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_3", "user-3", "jwt")))

	removed, err := f.manager.InvalidateProviderSessions(ctx, "ldap")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = f.manager.GetSession(ctx, "ses_1")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = f.manager.GetSession(ctx, "ses_3")
	require.NoError(t, err)
}

func TestTerminateAllUserSessions(t *testing.T) {
	f := setupCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_1", "user-1", "jwt")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_2", "user-1", "ldap")))
	require.NoError(t, f.manager.PutSession(ctx, cachedRecord("ses_3", "user-2", "jwt")))

	removed, err := f.manager.TerminateAllUserSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	ids, err := f.manager.GetSessionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, ids)

	survivors, err := f.manager.GetSessionsByUser(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, []string{"ses_3"}, survivors)
}

func TestTokenMappingHonorsRemainingLifetime(t *testing.T) {
	now := time.Now()
	f := setupCacheFixture(t)
	f.kv.NowFunc = func() time.Time { return now }
	ctx := context.Background()

	// Remaining lifetime shorter than the mapping TTL caps the entry.
	require.NoError(t, f.manager.PutTokenMapping(ctx, "short-lived", "ses_1", time.Minute))

	id, err := f.manager.SessionIDByToken(ctx, "short-lived")
	require.NoError(t, err)
	require.Equal(t, "ses_1", id)

	now = now.Add(2 * time.Minute)
	_, err = f.manager.SessionIDByToken(ctx, "short-lived")
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	// A mapping for an already-expired token is never written.
	require.NoError(t, f.manager.PutTokenMapping(ctx, "dead", "ses_2", -time.Second))
	_, err = f.manager.SessionIDByToken(ctx, "dead")
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}
