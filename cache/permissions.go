package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// PermissionSource is the external RBAC capability used to enrich cached
// sessions with authorization data.
type PermissionSource interface {
	PermissionsFor(ctx context.Context, userUUID string) (map[string][]string, []string, error)
}

// PermissionHash digests a permission map and role list into a canonical
// hash. Roles and resource/action sets are sorted first so map iteration
// order never flips the result.
func PermissionHash(permissions map[string][]string, roles []string) string {
	hash := sha256.New()

	sortedRoles := append([]string(nil), roles...)
	sort.Strings(sortedRoles)
	hash.Write([]byte("roles:" + strings.Join(sortedRoles, ",") + ";"))

	resources := make([]string, 0, len(permissions))
	for resource := range permissions {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		actions := append([]string(nil), permissions[resource]...)
		sort.Strings(actions)
		hash.Write([]byte(resource + ":" + strings.Join(actions, ",") + ";"))
	}

	return hex.EncodeToString(hash.Sum(nil))
}
