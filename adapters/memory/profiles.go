package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/portal/core"
)

// ProfileStore is an in-memory user_profiles table with a unique user_id.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*core.UserProfile // by id
	now      func() time.Time
}

var _ core.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*core.UserProfile), now: time.Now}
}

func clone(p *core.UserProfile) *core.UserProfile {
	cp := *p
	cp.Specializations = slices.Clone(p.Specializations)
	return &cp
}

func (s *ProfileStore) find(match func(*core.UserProfile) bool) *core.UserProfile {
	for _, p := range s.profiles {
		if match(p) {
			return p
		}
	}
	return nil
}

func (s *ProfileStore) GetProfileByUserID(_ context.Context, userID string) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.find(func(p *core.UserProfile) bool { return p.UserID == userID }); p != nil {
		return clone(p), nil
	}
	return nil, core.ErrProfileNotFound
}

func (s *ProfileStore) GetProfileByEmail(_ context.Context, email string) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.find(func(p *core.UserProfile) bool { return p.Email == email }); p != nil {
		return clone(p), nil
	}
	return nil, core.ErrProfileNotFound
}

func (s *ProfileStore) GetRoleByUserID(ctx context.Context, userID string) (core.Role, error) {
	p, err := s.GetProfileByUserID(ctx, userID)
	if err != nil {
		return core.RoleUnknown, err
	}
	return p.Role, nil
}

func (s *ProfileStore) CreateProfile(_ context.Context, p *core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.UserID != "" && s.find(func(e *core.UserProfile) bool { return e.UserID == p.UserID }) != nil {
		return core.ErrProfileExists
	}

	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = clone(p)
	return nil
}

func (s *ProfileStore) UpdateProfile(_ context.Context, filter core.ProfileFilter, patch core.ProfilePatch) (*core.UserProfile, error) {
	if patch.Empty() {
		return nil, core.ErrEmptyProfilePatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.find(filter.Matches)
	if p == nil {
		return nil, core.ErrProfileNotFound
	}

	if patch.UserID != nil && *patch.UserID != p.UserID {
		if s.find(func(e *core.UserProfile) bool { return e.UserID == *patch.UserID }) != nil {
			return nil, core.ErrProfileExists
		}
		p.UserID = *patch.UserID
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.Phone != nil {
		phone := *patch.Phone
		p.Phone = &phone
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.UpdatedAt = s.now()
	return clone(p), nil
}

// Len returns the number of stored profiles.
func (s *ProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
