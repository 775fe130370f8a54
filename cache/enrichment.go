package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/session"
)

// UserPermissions is the standalone per-user permission cache value.
type UserPermissions struct {
	Permissions map[string][]string `json:"permissions"`
	Roles       []string            `json:"roles"`
	LoadedAt    time.Time           `json:"loaded_at"`
}

// AreSessionPermissionsValid returns true only when the cached
// authorization data is younger than the permission TTL AND the recomputed
// hash still matches. The hash check guards against silent drift when the
// cached structure is mutated out of band.
func (m *Manager) AreSessionPermissionsValid(rec *session.Record) bool {
	if rec.PermissionsLoadedAt.IsZero() || rec.PermissionHash == "" {
		return false
	}
	if m.nowFunc().Sub(rec.PermissionsLoadedAt) >= m.permTTL {
		return false
	}
	return PermissionHash(rec.Permissions, rec.Roles) == rec.PermissionHash
}

// GetOptimizedSession returns the cached session, synchronously reloading
// its permissions first when they are stale. The reload happens on the
// calling goroutine: the caller never observes authorization data older
// than the permission TTL.
func (m *Manager) GetOptimizedSession(ctx context.Context, id string) (*session.Record, error) {
	rec, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.AreSessionPermissionsValid(rec) {
		return rec, nil
	}
	if m.perms == nil {
		return rec, nil
	}

	if err := m.loadPermissions(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "[Manager.GetOptimizedSession] loadPermissions")
	}
	if err := m.rewriteSession(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "[Manager.GetOptimizedSession] rewriteSession")
	}
	return rec, nil
}

// BatchLoadUserPermissions resolves permissions for many users, consulting
// the per-user permission cache first and loading only the misses.
func (m *Manager) BatchLoadUserPermissions(ctx context.Context, userUUIDs []string) (map[string]UserPermissions, error) {
	result := make(map[string]UserPermissions, len(userUUIDs))
	if len(userUUIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userUUIDs))
	for i, uuid := range userUUIDs {
		keys[i] = keyUserPerms + uuid
	}
	values, err := m.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.BatchLoadUserPermissions] MGet")
	}

	var misses []string
	for i, value := range values {
		if value == nil {
			misses = append(misses, userUUIDs[i])
			continue
		}
		var up UserPermissions
		if err := json.Unmarshal([]byte(*value), &up); err != nil {
			misses = append(misses, userUUIDs[i])
			continue
		}
		result[userUUIDs[i]] = up
	}

	if m.perms == nil {
		return result, nil
	}
	for _, uuid := range misses {
		permissions, roles, err := m.perms.PermissionsFor(ctx, uuid)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.BatchLoadUserPermissions] PermissionsFor")
		}
		up := UserPermissions{Permissions: permissions, Roles: roles, LoadedAt: m.nowFunc()}
		result[uuid] = up
		if err := m.putUserPermissions(ctx, uuid, up); err != nil {
			return nil, errors.Wrap(err, "[Manager.BatchLoadUserPermissions] putUserPermissions")
		}
	}
	return result, nil
}

// loadPermissions refreshes the record's authorization data from the
// permission source and restamps the staleness fields, updating the
// standalone per-user permission cache as well.
func (m *Manager) loadPermissions(ctx context.Context, rec *session.Record) error {
	if m.perms == nil {
		return errors.New("[Manager.loadPermissions] no permission source configured")
	}

	permissions, roles, err := m.perms.PermissionsFor(ctx, rec.UserUUID)
	if err != nil {
		return errors.Wrap(err, "[Manager.loadPermissions] PermissionsFor")
	}

	now := m.nowFunc()
	rec.Permissions = permissions
	rec.Roles = roles
	rec.PermissionsLoadedAt = now
	rec.PermissionHash = PermissionHash(permissions, roles)

	return m.putUserPermissions(ctx, rec.UserUUID, UserPermissions{
		Permissions: permissions,
		Roles:       roles,
		LoadedAt:    now,
	})
}

func (m *Manager) putUserPermissions(ctx context.Context, userUUID string, up UserPermissions) error {
	data, err := json.Marshal(up)
	if err != nil {
		return errors.Wrap(err, "[Manager.putUserPermissions] Marshal")
	}
	return m.kv.Set(ctx, keyUserPerms+userUUID, string(data), m.permTTL)
}

// rewriteSession rewrites the canonical payload in place, preserving the
// remaining refresh-window TTL.
func (m *Manager) rewriteSession(ctx context.Context, rec *session.Record) error {
	ttl := rec.RefreshExpiresAt.Sub(m.nowFunc())
	if ttl <= 0 {
		return nil
	}
	payload, err := payloadEntry(rec)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, keySessionData+rec.ID, payload, ttl)
}
