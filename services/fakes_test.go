package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/portal/core"
)

// FakeAuthClient is a test-only core.AuthClient. Events are delivered
// synchronously with Emit; error fields inject failures.
type FakeAuthClient struct {
	mu       sync.Mutex
	session  *core.Session
	handlers map[int]core.AuthEventHandler
	nextID   int

	getSessionErr error
	// getSessionBlock, when set, holds GetSession after it has read the
	// session; getSessionStarted is closed at that point.
	getSessionBlock   chan struct{}
	getSessionStarted chan struct{}
	signInErr     error
	signUpErr     error
	signOutErr    error
	// signOutBlock, when set, holds SignOut until closed or ctx is done.
	signOutBlock chan struct{}
	// emitOnSignOut delivers signed_out from inside SignOut, like a real provider.
	emitOnSignOut bool

	signOutCalls   atomic.Int32
	resetCalls     atomic.Int32
	updatePwdCalls atomic.Int32
	signUpNoSess   bool
}

func NewFakeAuthClient() *FakeAuthClient {
	return &FakeAuthClient{handlers: make(map[int]core.AuthEventHandler)}
}

type fakeSubscription struct {
	client *FakeAuthClient
	id     int
}

func (s fakeSubscription) Unsubscribe() {
	s.client.mu.Lock()
	delete(s.client.handlers, s.id)
	s.client.mu.Unlock()
}

func (f *FakeAuthClient) OnAuthStateChange(handler core.AuthEventHandler) core.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[f.nextID] = handler
	return fakeSubscription{client: f, id: f.nextID}
}

func (f *FakeAuthClient) Emit(ctx context.Context, event core.AuthEvent) {
	f.mu.Lock()
	handlers := make([]core.AuthEventHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

func (f *FakeAuthClient) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *FakeAuthClient) SetSession(s *core.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *FakeAuthClient) GetSession(context.Context) (*core.Session, error) {
	f.mu.Lock()
	session, err := f.session, f.getSessionErr
	block, started := f.getSessionBlock, f.getSessionStarted
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			close(started)
		}
		<-block
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (f *FakeAuthClient) SignIn(ctx context.Context, input core.SignInInput) (*core.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := newSession("id-"+input.Email, input.Email)
	f.SetSession(s)
	f.Emit(ctx, core.AuthEvent{Kind: core.EventSignedIn, Session: s})
	return s, nil
}

func (f *FakeAuthClient) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	user := &core.User{ID: "id-" + input.Email, Email: input.Email}
	if f.signUpNoSess {
		return &core.SignUpResult{User: user}, nil
	}
	s := &core.Session{User: user, AccessToken: "access-" + user.ID, ExpiresAt: time.Now().Add(time.Hour)}
	f.SetSession(s)
	f.Emit(ctx, core.AuthEvent{Kind: core.EventSignedIn, Session: s})
	return &core.SignUpResult{User: user, Session: s}, nil
}

func (f *FakeAuthClient) SignOut(ctx context.Context) error {
	f.signOutCalls.Add(1)
	if f.signOutBlock != nil {
		select {
		case <-f.signOutBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.SetSession(nil)
	if f.emitOnSignOut {
		f.Emit(ctx, core.AuthEvent{Kind: core.EventSignedOut})
	}
	return nil
}

func (f *FakeAuthClient) ResetPassword(context.Context, string) error {
	f.resetCalls.Add(1)
	return nil
}

func (f *FakeAuthClient) UpdatePassword(context.Context, string) error {
	f.updatePwdCalls.Add(1)
	return nil
}

func newSession(userID, email string) *core.Session {
	return &core.Session{
		User:         &core.User{ID: userID, Email: email},
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// FakeProfileStore is a test-only core.ProfileStore keyed by profile id.
type FakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*core.UserProfile
	seq      int

	getErr    error
	roleErr   error
	createErr error
	// block, when set, holds lookups by user id until closed or ctx is done.
	block chan struct{}

	createCalls atomic.Int32
	updateCalls atomic.Int32
}

func NewFakeProfileStore() *FakeProfileStore {
	return &FakeProfileStore{profiles: make(map[string]*core.UserProfile)}
}

// Seed inserts a profile directly.
func (f *FakeProfileStore) Seed(p core.UserProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if p.ID == "" {
		p.ID = fmt.Sprintf("profile-%d", f.seq)
	}
	f.profiles[p.ID] = &p
}

func (f *FakeProfileStore) Rows() []core.UserProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]core.UserProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		rows = append(rows, *p)
	}
	slices.SortFunc(rows, func(a, b core.UserProfile) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return rows
}

func (f *FakeProfileStore) wait(ctx context.Context) error {
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeProfileStore) GetProfileByUserID(ctx context.Context, userID string) (*core.UserProfile, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.ErrProfileNotFound
}

func (f *FakeProfileStore) GetProfileByEmail(_ context.Context, email string) (*core.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.ErrProfileNotFound
}

func (f *FakeProfileStore) GetRoleByUserID(ctx context.Context, userID string) (core.Role, error) {
	if f.roleErr != nil {
		return core.RoleUnknown, f.roleErr
	}
	p, err := f.GetProfileByUserID(ctx, userID)
	if err != nil {
		return core.RoleUnknown, err
	}
	return p.Role, nil
}

func (f *FakeProfileStore) CreateProfile(_ context.Context, p *core.UserProfile) error {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.profiles {
		if existing.UserID == p.UserID {
			return core.ErrProfileExists
		}
	}
	f.seq++
	now := time.Now()
	p.ID = fmt.Sprintf("profile-%d", f.seq)
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *FakeProfileStore) UpdateProfile(_ context.Context, filter core.ProfileFilter, patch core.ProfilePatch) (*core.UserProfile, error) {
	f.updateCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.Empty() {
		return nil, core.ErrEmptyProfilePatch
	}
	for _, p := range f.profiles {
		if filter.Matches(p) {
			if patch.UserID != nil {
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
				p.Phone = patch.Phone
			}
			if patch.IsActive != nil {
				p.IsActive = *patch.IsActive
			}
			p.UpdatedAt = time.Now()
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.ErrProfileNotFound
}

// FakePermissionStore is a test-only core.PermissionStore.
type FakePermissionStore struct {
	grants map[core.Role][]string
	all    []string
	err    error
	allErr error
	// block, when set, holds every call until closed or ctx is done.
	block chan struct{}
	calls atomic.Int32
}

func NewFakePermissionStore() *FakePermissionStore {
	return &FakePermissionStore{grants: core.DefaultRolePermissions, all: core.KnownPermissions}
}

func (f *FakePermissionStore) wait(ctx context.Context) error {
	f.calls.Add(1)
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakePermissionStore) PermissionsForRole(ctx context.Context, role core.Role) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.grants[role]), nil
}

func (f *FakePermissionStore) AllPermissions(ctx context.Context) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.allErr != nil {
		return nil, f.allErr
	}
	return slices.Clone(f.all), nil
}

// FakeAuditSink records entries in memory.
type FakeAuditSink struct {
	mu      sync.Mutex
	entries []core.AuditEntry
	err     error
}

func (f *FakeAuditSink) Record(_ context.Context, e core.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *FakeAuditSink) Entries() []core.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entries)
}

// FakeSetupStore is a test-only core.SetupStore.
type FakeSetupStore struct {
	pingErr     error
	hasSettings bool
	created     []core.FirmSettings
	createErr   error
	count       int
	countErr    error
}

func (f *FakeSetupStore) Ping(context.Context) error { return f.pingErr }

func (f *FakeSetupStore) HasFirmSettings(context.Context) (bool, error) {
	return f.hasSettings, nil
}

func (f *FakeSetupStore) CreateFirmSettings(_ context.Context, s *core.FirmSettings) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *s)
	f.hasSettings = true
	return nil
}

func (f *FakeSetupStore) CountPermissions(context.Context) (int, error) {
	return f.count, f.countErr
}

var errBoom = errors.New("boom")

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
