package services

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/cache"
)

// stubSource is an AuthStateSource whose state is set directly by tests.
type stubSource struct {
	mu       sync.Mutex
	state    core.AuthState
	watchers []func(core.AuthState)
}

func (s *stubSource) State() core.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubSource) Watch(fn func(core.AuthState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
	return func() {}
}

// Set publishes state with the next version.
func (s *stubSource) Set(state core.AuthState) {
	s.mu.Lock()
	state.Version = s.state.Version + 1
	s.state = state
	fns := slices.Clone(s.watchers)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func signedIn(userID, email string, profile *core.UserProfile) core.AuthState {
	s := newSession(userID, email)
	return core.AuthState{Phase: core.PhaseAuthenticated, User: s.User, Session: s, Profile: profile}
}

type gateFixture struct {
	source   *stubSource
	profiles *FakeProfileStore
	perms    *FakePermissionStore
	gate     *PermissionGate
}

func newGateFixture(t *testing.T, timeout time.Duration, c core.PermissionCache) *gateFixture {
	t.Helper()
	f := &gateFixture{
		source:   &stubSource{state: core.AuthState{Phase: core.PhaseUnauthenticated}},
		profiles: NewFakeProfileStore(),
		perms:    NewFakePermissionStore(),
	}
	f.gate = NewPermissionGate(
		core.PermissionConfig{Timeout: timeout, BootstrapAdminEmail: core.DefaultBootstrapAdminEmail},
		f.source, f.profiles, f.perms, c, discardLogger(),
	)
	t.Cleanup(f.gate.Close)
	return f
}

func (f *gateFixture) wait(t *testing.T) core.AccessSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.gate.Wait(ctx)
}

// Requirement: no user means no role, no permissions and not loading.
func TestPermissionGate_NoUser(t *testing.T) {
	f := newGateFixture(t, time.Second, nil)

	snap := f.wait(t)

	if snap.Role != core.RoleUnknown || len(snap.Permissions) != 0 || snap.Loading {
		t.Errorf("snapshot = %+v, want unknown role, no permissions, not loading", snap)
	}
}

// Requirement: role comes from the profile, then the store, then defaults
// to client; the bootstrap email forces admin.
func TestPermissionGate_RoleResolution(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		profile  *core.UserProfile
		stored   core.Role
		roleErr  error
		wantRole core.Role
	}{
		{name: "profile role", email: "att@firm.com", profile: &core.UserProfile{Role: core.RoleAttorney}, wantRole: core.RoleAttorney},
		{name: "stored role", email: "para@firm.com", stored: core.RoleParalegal, wantRole: core.RoleParalegal},
		{name: "no profile anywhere", email: "nobody@example.com", wantRole: core.RoleClient},
		{name: "bootstrap overrides profile", email: "admin@legalportal.com", profile: &core.UserProfile{Role: core.RoleClient}, wantRole: core.RoleAdmin},
		{name: "lookup error", email: "err@example.com", roleErr: errBoom, wantRole: core.RoleClient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			f := newGateFixture(t, time.Second, nil)
			if test.stored != core.RoleUnknown {
				f.profiles.Seed(core.UserProfile{UserID: "u1", Email: test.email, Role: test.stored})
			}
			f.profiles.roleErr = test.roleErr

			// Act
			f.source.Set(signedIn("u1", test.email, test.profile))
			snap := f.wait(t)

			// Assert
			if snap.Role != test.wantRole {
				t.Errorf("Role = %v, want %v", snap.Role, test.wantRole)
			}
			if snap.Loading {
				t.Error("Loading should be false once resolved")
			}
			if test.roleErr != nil && len(snap.Permissions) != 0 {
				t.Errorf("Permissions = %v, want none after an error", snap.Permissions)
			}
		})
	}
}

// Requirement: admin holds every known permission without explicit rows.
func TestPermissionGate_AdminHasEverything(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		profile *core.UserProfile
		allErr  error
	}{
		{name: "admin profile", email: "boss@firm.com", profile: &core.UserProfile{Role: core.RoleAdmin}},
		{name: "bootstrap email", email: "admin@legalportal.com"},
		{name: "catalogue unavailable", email: "boss@firm.com", profile: &core.UserProfile{Role: core.RoleAdmin}, allErr: errBoom},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newGateFixture(t, time.Second, nil)
			f.perms.allErr = test.allErr
			if _, ok := f.perms.grants[core.RoleAdmin]; ok {
				t.Fatal("fixture must not carry admin grants")
			}

			f.source.Set(signedIn("u1", test.email, test.profile))
			f.wait(t)

			if !f.gate.IsAdmin() {
				t.Fatalf("Role = %v, want admin", f.gate.Role())
			}
			for _, p := range core.KnownPermissions {
				if !f.gate.HasPermission(p) {
					t.Errorf("admin lacks %q", p)
				}
			}
		})
	}
}

// Requirement: capability queries use exact resource.action membership.
func TestPermissionGate_CapabilityQueries(t *testing.T) {
	f := newGateFixture(t, time.Second, nil)
	f.source.Set(signedIn("u1", "client@example.com", &core.UserProfile{Role: core.RoleClient}))
	f.wait(t)

	tests := []struct {
		resource, action string
		want             bool
	}{
		{"cases", "read", true},
		{"documents", "upload", true},
		{"cases", "delete", false},
		{"users", "manage", false},
		{"cases", "", false},
	}
	for _, test := range tests {
		if got := f.gate.CanAccess(test.resource, test.action); got != test.want {
			t.Errorf("CanAccess(%q, %q) = %v, want %v", test.resource, test.action, got, test.want)
		}
	}

	if !f.gate.IsClient() || f.gate.IsStaff() || f.gate.IsAdmin() || f.gate.IsAttorney() || f.gate.IsParalegal() {
		t.Errorf("role predicates wrong for %v", f.gate.Role())
	}
}

// Requirement: a resolution that misses the timeout stops loading with no
// permissions, and its late result is discarded.
func TestPermissionGate_Timeout(t *testing.T) {
	// Arrange
	f := newGateFixture(t, 50*time.Millisecond, nil)
	f.perms.block = make(chan struct{})

	// Act
	start := time.Now()
	f.source.Set(signedIn("u1", "slow@example.com", &core.UserProfile{Role: core.RoleAttorney}))
	snap := f.wait(t)

	// Assert
	if time.Since(start) > time.Second {
		t.Errorf("Wait took %v, want about the timeout", time.Since(start))
	}
	if snap.Loading {
		t.Error("Loading should be false after the timeout")
	}
	if len(snap.Permissions) != 0 {
		t.Errorf("Permissions = %v, want none", snap.Permissions)
	}

	close(f.perms.block)
	time.Sleep(50 * time.Millisecond)
	if perms := f.gate.Permissions(); len(perms) != 0 {
		t.Errorf("late result applied: %v", perms)
	}
}

// Requirement: loading composes with the session manager's loading.
func TestPermissionGate_LoadingComposesWithSession(t *testing.T) {
	f := newGateFixture(t, time.Second, nil)
	state := signedIn("u1", "a@example.com", &core.UserProfile{Role: core.RoleClient})
	state.Loading = true
	f.source.Set(state)

	snap := f.wait(t)

	if !snap.Loading {
		t.Error("Loading should stay true while the session is loading")
	}
	if snap.Role != core.RoleClient {
		t.Errorf("Role = %v, want client", snap.Role)
	}
}

// Requirement: an unchanged identity does not trigger another resolution,
// and cached grants are reused until Refetch.
func TestPermissionGate_CacheAndRefetch(t *testing.T) {
	// Arrange
	c := cache.NewInMemoryCache(core.CacheConfig{TTL: time.Minute})
	f := newGateFixture(t, time.Second, c)
	state := signedIn("u1", "a@example.com", &core.UserProfile{Role: core.RoleParalegal})

	// Act
	f.source.Set(state)
	f.wait(t)
	f.source.Set(state) // same key, new version
	f.wait(t)
	f.source.Set(signedIn("u2", "b@example.com", &core.UserProfile{Role: core.RoleParalegal}))
	f.wait(t)

	// Assert
	if got := f.perms.calls.Load(); got != 1 {
		t.Errorf("store calls = %d, want 1 (second user served from cache)", got)
	}

	f.gate.Refetch(context.Background())
	f.wait(t)
	if got := f.perms.calls.Load(); got != 2 {
		t.Errorf("store calls after Refetch = %d, want 2", got)
	}
	if !f.gate.CanAccess("tasks", "manage") {
		t.Error("paralegal should manage tasks")
	}
}

// Requirement: snapshots older than the last seen are ignored.
func TestPermissionGate_IgnoresOutOfOrderSnapshots(t *testing.T) {
	f := newGateFixture(t, time.Second, nil)
	old := signedIn("u1", "a@example.com", &core.UserProfile{Role: core.RoleAttorney})
	old.Version = 1
	f.source.Set(core.AuthState{Phase: core.PhaseUnauthenticated}) // version 1
	f.source.Set(core.AuthState{Phase: core.PhaseUnauthenticated}) // version 2

	f.gate.observe(old, false)
	snap := f.wait(t)

	if snap.Role != core.RoleUnknown {
		t.Errorf("Role = %v, stale snapshot should be ignored", snap.Role)
	}
}

// Requirement: signing out drops role and permissions.
func TestPermissionGate_SignOutClears(t *testing.T) {
	f := newGateFixture(t, time.Second, nil)
	f.source.Set(signedIn("u1", "a@example.com", &core.UserProfile{Role: core.RoleAttorney}))
	f.wait(t)

	f.source.Set(core.AuthState{Phase: core.PhaseSigningOut, Loading: true, SigningOut: true})

	if f.gate.Role() != core.RoleUnknown || len(f.gate.Permissions()) != 0 {
		t.Errorf("after sign out role=%v perms=%v", f.gate.Role(), f.gate.Permissions())
	}
}
