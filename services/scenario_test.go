package services

import (
	"context"
	"testing"
	"time"

	"github.com/lborres/portal/core"
)

type stack struct {
	client  *FakeAuthClient
	store   *FakeProfileStore
	manager *SessionManager
	gate    *PermissionGate
	auth    *AuthService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{client: NewFakeAuthClient(), store: NewFakeProfileStore()}
	resolver := newTestResolver(s.store)
	s.manager = NewSessionManager(core.DefaultSessionConfig(), s.client, resolver, discardLogger())
	s.gate = NewPermissionGate(core.DefaultPermissionConfig(), s.manager, s.store, NewFakePermissionStore(), nil, discardLogger())
	s.auth = NewAuthService(s.client, s.manager, resolver, nil, discardLogger())
	s.manager.Start(context.Background())
	t.Cleanup(func() {
		s.gate.Close()
		s.manager.Close()
	})
	return s
}

func (s *stack) signIn(t *testing.T, email string) core.AccessSnapshot {
	t.Helper()
	if _, err := s.auth.SignIn(context.Background(), core.SignInInput{Email: email, Password: "secret123"}); err != nil {
		t.Fatalf("SignIn(%q) error = %v", email, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.gate.Wait(ctx)
}

// Requirement: signing in as the bootstrap admin yields staff, not client.
func TestScenario_BootstrapAdminSignIn(t *testing.T) {
	s := newStack(t)

	snap := s.signIn(t, "admin@legalportal.com")

	if snap.Role != core.RoleAdmin || snap.Loading {
		t.Fatalf("snapshot = %+v, want admin and settled", snap)
	}
	if !s.gate.IsStaff() || s.gate.IsClient() {
		t.Errorf("IsStaff = %v, IsClient = %v; want true, false", s.gate.IsStaff(), s.gate.IsClient())
	}
	if p := s.manager.State().Profile; p == nil || p.Role != core.RoleAdmin {
		t.Errorf("profile = %+v, want admin profile", p)
	}
}

// Requirement: a never-seen email gets an active client profile.
func TestScenario_NewClientSignIn(t *testing.T) {
	s := newStack(t)

	snap := s.signIn(t, "new.client@example.com")

	rows := s.store.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Role != core.RoleClient || !rows[0].IsActive || rows[0].Email != "new.client@example.com" {
		t.Errorf("profile = %+v, want active client", rows[0])
	}
	if snap.Role != core.RoleClient || !s.gate.CanAccess("cases", "read") || s.gate.CanAccess("users", "manage") {
		t.Errorf("snapshot = %+v, want client grants", snap)
	}
}

// Requirement: double sign-out hits the provider once and both calls return.
func TestScenario_DoubleSignOut(t *testing.T) {
	s := newStack(t)
	s.signIn(t, "new.client@example.com")
	s.client.signOutBlock = make(chan struct{})

	returned := make(chan struct{}, 2)
	for range 2 {
		go func() {
			s.manager.SignOut(context.Background())
			returned <- struct{}{}
		}()
	}
	if !eventually(func() bool { return s.client.signOutCalls.Load() == 1 }) {
		t.Fatal("sign out never reached the client")
	}
	// one of the two returns right away as a no-op
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("no-op SignOut did not return")
	}

	close(s.client.signOutBlock)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("SignOut did not return")
	}

	if got := s.client.signOutCalls.Load(); got != 1 {
		t.Errorf("remote calls = %d, want 1", got)
	}
	if s.manager.State().User != nil || s.gate.Role() != core.RoleUnknown {
		t.Error("state should be signed out")
	}
}
