package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/lborres/portal/core"
)

// PermissionStore serves the built-in permission seed.
type PermissionStore struct {
	mu     sync.RWMutex
	grants map[core.Role][]string
	all    []string
}

var _ core.PermissionStore = (*PermissionStore)(nil)

func NewPermissionStore() *PermissionStore {
	grants := make(map[core.Role][]string, len(core.DefaultRolePermissions))
	for role, names := range core.DefaultRolePermissions {
		grants[role] = slices.Clone(names)
	}
	return &PermissionStore{grants: grants, all: slices.Clone(core.KnownPermissions)}
}

// Grant adds names to role, extending the catalogue as needed.
func (s *PermissionStore) Grant(role core.Role, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if !slices.Contains(s.grants[role], n) {
			s.grants[role] = append(s.grants[role], n)
		}
		if i, found := slices.BinarySearch(s.all, n); !found {
			s.all = slices.Insert(s.all, i, n)
		}
	}
}

func (s *PermissionStore) PermissionsForRole(_ context.Context, role core.Role) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.grants[role]), nil
}

func (s *PermissionStore) AllPermissions(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.all), nil
}

func (s *PermissionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}
