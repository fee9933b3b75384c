package core

import (
	"slices"
	"strings"
)

// PermissionName builds the canonical "resource.action" permission name.
func PermissionName(resource, action string) string {
	return resource + "." + action
}

// SplitPermission is the inverse of PermissionName.
func SplitPermission(name string) (resource, action string, ok bool) {
	return strings.Cut(name, ".")
}

// DefaultRolePermissions is the permission seed shipped with the portal.
//
// Admin is intentionally absent: admins are granted every known permission
// at resolution time regardless of explicit grants.
var DefaultRolePermissions = map[Role][]string{
	RoleAttorney: {
		"analytics.read",
		"billing.manage", "billing.read",
		"calendar.manage", "calendar.read",
		"cases.create", "cases.delete", "cases.read", "cases.update",
		"clients.read",
		"documents.delete", "documents.read", "documents.upload",
		"messages.read", "messages.send",
		"tasks.manage", "tasks.read",
		"users.read",
	},
	RoleParalegal: {
		"calendar.manage", "calendar.read",
		"cases.read", "cases.update",
		"clients.read",
		"documents.read", "documents.upload",
		"messages.read", "messages.send",
		"tasks.manage", "tasks.read",
	},
	RoleClient: {
		"billing.read",
		"calendar.read",
		"cases.read",
		"documents.read", "documents.upload",
		"messages.read", "messages.send",
	},
}

// KnownPermissions is the full permission catalogue, sorted.
var KnownPermissions = func() []string {
	seen := map[string]struct{}{
		"audit.read":      {},
		"settings.manage": {},
		"users.manage":    {},
	}
	for _, names := range DefaultRolePermissions {
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}()
