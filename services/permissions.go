package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lborres/portal/core"
)

// AuthStateSource is the read side of the SessionManager.
type AuthStateSource interface {
	State() core.AuthState
	Watch(fn func(core.AuthState)) (cancel func())
}

// PermissionGate derives the current user's role and permission set from the
// session state and answers capability queries.
//
// Each resolution is bounded by config.Timeout. When it expires the gate
// stops loading with no permissions, and a late result is discarded.
type PermissionGate struct {
	config   core.PermissionConfig
	source   AuthStateSource
	profiles core.ProfileStore
	perms    core.PermissionStore
	cache    core.PermissionCache // optional
	logger   *slog.Logger

	mu          sync.Mutex
	closed      bool
	version     uint64
	key         gateKey
	observed    bool
	gen         uint64
	role        core.Role
	permissions []string
	loading     bool
	// settled is open exactly while loading is true.
	settled chan struct{}
	stop    func() bool
	cancel  context.CancelFunc
	unwatch func()
}

// gateKey is what a resolution depends on. Unchanged keys skip re-resolution.
type gateKey struct {
	userID      string
	email       string
	profileRole core.Role
}

func NewPermissionGate(
	config core.PermissionConfig,
	source AuthStateSource,
	profiles core.ProfileStore,
	perms core.PermissionStore,
	cache core.PermissionCache,
	logger *slog.Logger,
) *PermissionGate {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = core.DefaultPermissionConfig().Timeout
	}

	settled := make(chan struct{})
	close(settled)

	g := &PermissionGate{
		config:   config,
		source:   source,
		profiles: profiles,
		perms:    perms,
		cache:    cache,
		logger:   logger.With("component", "permission_gate"),
		settled:  settled,
	}
	g.unwatch = source.Watch(func(state core.AuthState) { g.observe(state, false) })
	g.observe(source.State(), false)
	return g
}

func keyFor(state core.AuthState) gateKey {
	if state.User == nil || state.Phase == core.PhaseSigningOut {
		return gateKey{}
	}
	k := gateKey{userID: state.User.ID, email: state.User.Email}
	if state.Profile != nil {
		k.profileRole = state.Profile.Role
	}
	return k
}

// observe starts a new resolution generation when the relevant part of the
// state changed. Snapshots older than the last one seen are ignored.
func (g *PermissionGate) observe(state core.AuthState, force bool) {
	g.mu.Lock()
	if g.closed || (!force && g.observed && state.Version < g.version) {
		g.mu.Unlock()
		return
	}
	if state.Version > g.version {
		g.version = state.Version
	}
	key := keyFor(state)
	if !force && g.observed && key == g.key {
		g.mu.Unlock()
		return
	}
	userChanged := key.userID != g.key.userID
	g.observed = true
	g.key = key

	g.abortLocked()
	g.gen++
	gen := g.gen

	if key.userID == "" {
		g.role = core.RoleUnknown
		g.permissions = nil
		g.mu.Unlock()
		return
	}

	if userChanged {
		g.role = core.RoleUnknown
		g.permissions = nil
	}
	g.loading = true
	g.settled = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Timeout)
	g.cancel = cancel
	g.stop = context.AfterFunc(ctx, func() { g.expire(ctx, gen) })
	g.mu.Unlock()

	go g.resolve(ctx, gen, state)
}

// abortLocked abandons the running generation, if any.
func (g *PermissionGate) abortLocked() {
	if g.stop != nil {
		g.stop()
		g.stop = nil
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.loading {
		g.loading = false
		close(g.settled)
	}
}

func (g *PermissionGate) expire(ctx context.Context, gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.loading {
		g.mu.Unlock()
		return
	}
	g.role = core.RoleUnknown
	if g.key.profileRole.Valid() {
		g.role = g.key.profileRole
	}
	g.permissions = nil
	g.loading = false
	close(g.settled)
	g.mu.Unlock()

	permissionResolutionDuration.WithLabelValues(outcomeTimeout).Observe(g.config.Timeout.Seconds())
	g.logger.Warn("permission resolution timed out",
		"timeout", g.config.Timeout,
		"cause", context.Cause(ctx),
	)
}

func (g *PermissionGate) resolve(ctx context.Context, gen uint64, state core.AuthState) {
	start := time.Now()

	role, err := g.resolveRole(ctx, state)
	var perms []string
	if err == nil {
		perms, err = g.permissionsFor(ctx, role)
	}

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.expire(ctx, gen)
		return
	}

	g.mu.Lock()
	if gen != g.gen || !g.loading {
		g.mu.Unlock()
		permissionResolutionDuration.WithLabelValues(outcomeStale).Observe(time.Since(start).Seconds())
		return
	}
	outcome := outcomeApplied
	if err != nil {
		outcome = outcomeError
		role = core.RoleClient
		perms = nil
	}
	g.role = role
	g.permissions = perms
	g.loading = false
	close(g.settled)
	if g.stop != nil {
		g.stop()
		g.stop = nil
	}
	g.cancel()
	g.cancel = nil
	g.mu.Unlock()

	permissionResolutionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		g.logger.Warn("failed to resolve permissions, defaulting to client",
			"user_id", state.User.ID,
			"error", err,
		)
		return
	}
	g.logger.Debug("permissions resolved",
		"user_id", state.User.ID,
		"role", role.String(),
		"count", len(perms),
	)
}

// resolveRole applies, in order: the bootstrap email override, the loaded
// profile, a direct role lookup, and finally the client default.
func (g *PermissionGate) resolveRole(ctx context.Context, state core.AuthState) (core.Role, error) {
	if g.config.BootstrapAdminEmail != "" && state.User.Email == g.config.BootstrapAdminEmail {
		return core.RoleAdmin, nil
	}
	if state.Profile != nil && state.Profile.Role.Valid() {
		return state.Profile.Role, nil
	}

	role, err := g.profiles.GetRoleByUserID(ctx, state.User.ID)
	switch {
	case errors.Is(err, core.ErrProfileNotFound):
		return core.RoleClient, nil
	case err != nil:
		return core.RoleUnknown, fmt.Errorf("failed to get role: %w", err)
	case !role.Valid():
		return core.RoleClient, nil
	}
	return role, nil
}

// permissionsFor returns the sorted grants for role. Admin always receives
// the whole catalogue.
func (g *PermissionGate) permissionsFor(ctx context.Context, role core.Role) ([]string, error) {
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, role); err == nil {
			slices.Sort(cached)
			return cached, nil
		} else if !errors.Is(err, core.ErrCacheNotFound) {
			g.logger.Debug("permission cache read failed", "role", role.String(), "error", err)
		}
	}

	var (
		perms []string
		err   error
	)
	if role == core.RoleAdmin {
		perms, err = g.perms.AllPermissions(ctx)
		if err != nil && ctx.Err() == nil {
			g.logger.Warn("failed to list permissions, using built-in catalogue for admin", "error", err)
			perms, err = slices.Clone(core.KnownPermissions), nil
		}
	} else {
		perms, err = g.perms.PermissionsForRole(ctx, role)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions for %s: %w", role, err)
	}

	perms = slices.Clone(perms)
	slices.Sort(perms)
	perms = slices.Compact(perms)

	if g.cache != nil {
		if err := g.cache.Set(ctx, role, perms); err != nil {
			g.logger.Debug("permission cache write failed", "role", role.String(), "error", err)
		}
	}
	return perms, nil
}

// Refetch drops cached grants and resolves again for the current state.
func (g *PermissionGate) Refetch(ctx context.Context) {
	if g.cache != nil {
		if err := g.cache.Clear(ctx); err != nil {
			g.logger.Warn("failed to clear permission cache", "error", err)
		}
	}
	g.observe(g.source.State(), true)
}

// Wait blocks until the current resolution settles or ctx is done, then
// returns the snapshot.
func (g *PermissionGate) Wait(ctx context.Context) core.AccessSnapshot {
	for {
		g.mu.Lock()
		if !g.loading {
			g.mu.Unlock()
			return g.Snapshot()
		}
		ch := g.settled
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return g.Snapshot()
		}
	}
}

// Snapshot returns role, permissions and the combined loading flag.
func (g *PermissionGate) Snapshot() core.AccessSnapshot {
	sessionLoading := g.source.State().Loading

	g.mu.Lock()
	defer g.mu.Unlock()
	return core.AccessSnapshot{
		Role:        g.role,
		Permissions: slices.Clone(g.permissions),
		Loading:     g.loading || sessionLoading,
	}
}

func (g *PermissionGate) Role() core.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.role
}

func (g *PermissionGate) Permissions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.permissions)
}

// Loading is true while either the gate or the session manager is loading.
func (g *PermissionGate) Loading() bool {
	return g.Snapshot().Loading
}

// HasPermission reports exact membership of name in the resolved set.
func (g *PermissionGate) HasPermission(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, found := slices.BinarySearch(g.permissions, name)
	return found
}

func (g *PermissionGate) CanAccess(resource, action string) bool {
	return g.HasPermission(core.PermissionName(resource, action))
}

func (g *PermissionGate) IsAdmin() bool     { return g.Role() == core.RoleAdmin }
func (g *PermissionGate) IsAttorney() bool  { return g.Role() == core.RoleAttorney }
func (g *PermissionGate) IsParalegal() bool { return g.Role() == core.RoleParalegal }
func (g *PermissionGate) IsClient() bool    { return g.Role() == core.RoleClient }
func (g *PermissionGate) IsStaff() bool     { return g.Role().IsStaff() }

// Close detaches the gate from the session manager and abandons any running
// resolution.
func (g *PermissionGate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.gen++
	g.abortLocked()
	unwatch := g.unwatch
	g.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}
