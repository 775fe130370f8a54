package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/session"
)

const defaultTokenMappingTTL = 5 * time.Minute

// Manager is the cache-resident session index. It keeps per-provider and
// per-user secondary indexes next to each session write, and judges the
// freshness of cached authorization data by TTL and hash, independent of
// the session's own lifetime.
//
// Index mutations are read-modify-write with deduplication: the substrate
// offers no set-native operations, and concurrent writers can in the worst
// case drop an index entry. Indexes are advisory acceleration structures;
// the durable store stays the ground truth for session existence.
type Manager struct {
	kv              KVCache
	perms           PermissionSource // optional
	permTTL         time.Duration
	tokenMappingTTL time.Duration
	nowFunc         func() time.Time
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithPermissionSource wires the external RBAC capability used for
// permission enrichment and read-through reload.
func WithPermissionSource(source PermissionSource) ManagerOption {
	return func(m *Manager) {
		m.perms = source
	}
}

// WithPermissionTTL sets how long cached permissions stay fresh.
func WithPermissionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.permTTL = ttl
	}
}

// WithTokenMappingTTL sets the lifetime of token→session mapping entries.
func WithTokenMappingTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.tokenMappingTTL = ttl
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a session cache manager over the given substrate.
func NewManager(kv KVCache, options ...ManagerOption) (*Manager, error) {
	if kv == nil {
		return nil, errors.New("[NewManager] KVCache is required")
	}

	manager := &Manager{
		kv:              kv,
		permTTL:         5 * time.Minute,
		tokenMappingTTL: defaultTokenMappingTTL,
		nowFunc:         time.Now,
	}
	for _, opt := range options {
		opt(manager)
	}
	return manager, nil
}

// PutSession writes the canonical session payload once, plus two pointer
// entries (one per token) and a short-TTL token mapping, and adds the
// session to the provider and user indexes. When a permission source is
// configured the record is enriched before it is written.
func (m *Manager) PutSession(ctx context.Context, rec *session.Record) error {
	now := m.nowFunc()
	refreshTTL := rec.RefreshExpiresAt.Sub(now)
	accessTTL := rec.AccessExpiresAt.Sub(now)
	if refreshTTL <= 0 {
		return errors.New("[Manager.PutSession] session refresh window already closed")
	}

	if m.perms != nil && rec.PermissionsLoadedAt.IsZero() {
		if err := m.loadPermissions(ctx, rec); err != nil {
			// Enrichment is best-effort at write time; the read path reloads.
			log.Warn().Err(err).Str("session_id", rec.ID).Msg("permission enrichment failed")
		}
	}

	dataKey := keySessionData + rec.ID
	payload, err := payloadEntry(rec)
	if err != nil {
		return errors.Wrap(err, "[Manager.PutSession] encode payload")
	}
	if err := m.kv.Set(ctx, dataKey, payload, refreshTTL); err != nil {
		return errors.Wrap(err, "[Manager.PutSession] set canonical entry")
	}

	pointer, err := pointerEntry(dataKey)
	if err != nil {
		return errors.Wrap(err, "[Manager.PutSession] encode pointer")
	}
	if accessTTL > 0 {
		if err := m.kv.Set(ctx, keySessionToken+rec.AccessToken, pointer, accessTTL); err != nil {
			return errors.Wrap(err, "[Manager.PutSession] set access pointer")
		}
	}
	if err := m.kv.Set(ctx, keySessionRefresh+rec.RefreshToken, pointer, refreshTTL); err != nil {
		return errors.Wrap(err, "[Manager.PutSession] set refresh pointer")
	}

	if err := m.PutTokenMapping(ctx, rec.AccessToken, rec.ID, accessTTL); err != nil {
		return errors.Wrap(err, "[Manager.PutSession] token mapping")
	}

	if err := m.addToIndex(ctx, keyProviderIndex+rec.Provider, rec.ID); err != nil {
		return errors.Wrap(err, "[Manager.PutSession] provider index")
	}
	if err := m.addToIndex(ctx, keyUserIndex+rec.UserUUID, rec.ID); err != nil {
		return errors.Wrap(err, "[Manager.PutSession] user index")
	}
	return nil
}

// GetSession returns the cached record for a session id.
func (m *Manager) GetSession(ctx context.Context, id string) (*session.Record, error) {
	return m.resolveRecord(ctx, keySessionData+id)
}

// GetSessionByToken resolves a session through its access-token pointer.
func (m *Manager) GetSessionByToken(ctx context.Context, accessToken string) (*session.Record, error) {
	return m.resolveRecord(ctx, keySessionToken+accessToken)
}

// GetSessionByRefreshToken resolves a session through its refresh-token pointer.
func (m *Manager) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (*session.Record, error) {
	return m.resolveRecord(ctx, keySessionRefresh+refreshToken)
}

func (m *Manager) resolveRecord(ctx context.Context, key string) (*session.Record, error) {
	raw, err := m.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec session.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrap(err, "[Manager.resolveRecord] Unmarshal")
	}
	return &rec, nil
}

// DestroySession removes a session's canonical entry, its pointers, its
// token mapping and its index memberships. Destroying an absent session is
// a no-op.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	rec, err := m.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return errors.Wrap(err, "[Manager.DestroySession] GetSession")
	}

	keys := []string{
		keySessionData + id,
		keySessionToken + rec.AccessToken,
		keySessionRefresh + rec.RefreshToken,
		keyTokenMapping + rec.AccessToken,
	}
	if err := m.kv.Delete(ctx, keys...); err != nil {
		return errors.Wrap(err, "[Manager.DestroySession] Delete")
	}

	if err := m.removeFromIndex(ctx, keyProviderIndex+rec.Provider, id); err != nil {
		return errors.Wrap(err, "[Manager.DestroySession] provider index")
	}
	if err := m.removeFromIndex(ctx, keyUserIndex+rec.UserUUID, id); err != nil {
		return errors.Wrap(err, "[Manager.DestroySession] user index")
	}
	return nil
}

// DeleteTokenEntries drops the cache entries addressed by a token pair
// without touching the canonical payload or indexes. Used on revocation so
// a stale mapping can never mask the durable status.
func (m *Manager) DeleteTokenEntries(ctx context.Context, accessToken, refreshToken string) error {
	keys := []string{keySessionToken + accessToken, keyTokenMapping + accessToken}
	if refreshToken != "" {
		keys = append(keys, keySessionRefresh+refreshToken)
	}
	return m.kv.Delete(ctx, keys...)
}

// PutTokenMapping caches token→session-id resolution with a short TTL,
// capped to the token's own remaining lifetime.
func (m *Manager) PutTokenMapping(ctx context.Context, tokenStr, sessionID string, remaining time.Duration) error {
	if remaining < 0 {
		// The token is already dead; never cache a mapping for it.
		return nil
	}
	ttl := m.tokenMappingTTL
	if remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	value, err := payloadEntry(sessionID)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, keyTokenMapping+tokenStr, value, ttl)
}

// SessionIDByToken resolves a bearer token to its session id via the
// short-TTL token mapping.
func (m *Manager) SessionIDByToken(ctx context.Context, tokenStr string) (string, error) {
	raw, err := m.resolve(ctx, keyTokenMapping+tokenStr)
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", errors.Wrap(err, "[Manager.SessionIDByToken] Unmarshal")
	}
	return id, nil
}

// GetSessionsByProvider returns the session ids indexed under a provider.
func (m *Manager) GetSessionsByProvider(ctx context.Context, provider string) ([]string, error) {
	return m.readIndex(ctx, keyProviderIndex+provider)
}

// GetSessionsByUser returns the session ids indexed under a user.
func (m *Manager) GetSessionsByUser(ctx context.Context, userUUID string) ([]string, error) {
	return m.readIndex(ctx, keyUserIndex+userUUID)
}

// BatchGetSessions fetches many sessions with a single multi-get. Missing
// ids are skipped.
func (m *Manager) BatchGetSessions(ctx context.Context, ids []string) ([]*session.Record, error) {
	if len(ids) == 0 {
		return []*session.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keySessionData + id
	}
	values, err := m.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.BatchGetSessions] MGet")
	}

	records := make([]*session.Record, 0, len(ids))
	for _, value := range values {
		if value == nil {
			continue
		}
		entry, err := decodeEntry(*value)
		if err != nil || entry.Kind != kindPayload {
			continue
		}
		var rec session.Record
		if err := json.Unmarshal(entry.Payload, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// QuerySessionsByProvider materializes the sessions behind a provider index
// and evaluates the filter over them. A nil filter returns every session.
func (m *Manager) QuerySessionsByProvider(ctx context.Context, provider string, filter *session.QueryFilter) ([]*session.Record, error) {
	ids, err := m.GetSessionsByProvider(ctx, provider)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.QuerySessionsByProvider] GetSessionsByProvider")
	}
	records, err := m.BatchGetSessions(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.QuerySessionsByProvider] BatchGetSessions")
	}
	if filter == nil {
		return records, nil
	}
	return filter.Apply(records), nil
}

// InvalidateProviderSessions destroys every cached session minted by the
// given provider and returns how many were removed.
func (m *Manager) InvalidateProviderSessions(ctx context.Context, provider string) (int, error) {
	ids, err := m.GetSessionsByProvider(ctx, provider)
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.InvalidateProviderSessions] GetSessionsByProvider")
	}

	removed := 0
	for _, id := range ids {
		if err := m.DestroySession(ctx, id); err != nil {
			return removed, errors.Wrap(err, "[Manager.InvalidateProviderSessions] DestroySession")
		}
		removed++
	}
	return removed, nil
}

// TerminateAllUserSessions destroys every cached session held by a user.
func (m *Manager) TerminateAllUserSessions(ctx context.Context, userUUID string) (int, error) {
	ids, err := m.GetSessionsByUser(ctx, userUUID)
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.TerminateAllUserSessions] GetSessionsByUser")
	}

	removed := 0
	for _, id := range ids {
		if err := m.DestroySession(ctx, id); err != nil {
			return removed, errors.Wrap(err, "[Manager.TerminateAllUserSessions] DestroySession")
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) readIndex(ctx context.Context, key string) ([]string, error) {
	value, err := m.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return []string{}, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		return nil, errors.Wrap(err, "[Manager.readIndex] Unmarshal")
	}
	return ids, nil
}

func (m *Manager) writeIndex(ctx context.Context, key string, ids []string) error {
	if len(ids) == 0 {
		return m.kv.Delete(ctx, key)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "[Manager.writeIndex] Marshal")
	}
	return m.kv.Set(ctx, key, string(data), 0)
}

func (m *Manager) addToIndex(ctx context.Context, key, id string) error {
	ids, err := m.readIndex(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return m.writeIndex(ctx, key, append(ids, id))
}

func (m *Manager) removeFromIndex(ctx context.Context, key, id string) error {
	ids, err := m.readIndex(ctx, key)
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(ids) {
		return nil
	}
	return m.writeIndex(ctx, key, filtered)
}
