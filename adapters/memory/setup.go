package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/portal/core"
)

// SetupStore holds firm settings and reports the permission catalogue of
// the PermissionStore it was built with.
type SetupStore struct {
	permissions *PermissionStore

	mu       sync.Mutex
	settings *core.FirmSettings
}

var _ core.SetupStore = (*SetupStore)(nil)

func NewSetupStore(permissions *PermissionStore) *SetupStore {
	return &SetupStore{permissions: permissions}
}

func (s *SetupStore) Ping(context.Context) error { return nil }

func (s *SetupStore) HasFirmSettings(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings != nil, nil
}

func (s *SetupStore) CreateFirmSettings(_ context.Context, settings *core.FirmSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.ID = uuid.NewString()
	settings.CreatedAt = time.Now()
	cp := *settings
	s.settings = &cp
	return nil
}

func (s *SetupStore) CountPermissions(context.Context) (int, error) {
	if s.permissions == nil {
		return 0, nil
	}
	return s.permissions.count(), nil
}

// AuditLog keeps audit entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

var _ core.AuditSink = (*AuditLog)(nil)

func (l *AuditLog) Record(_ context.Context, entry core.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *AuditLog) Entries() []core.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}
