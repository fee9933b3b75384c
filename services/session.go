package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/crypto"
)

// SessionManager owns the process-wide AuthState and keeps it in step with
// the remote auth client. It is the only writer of that state; everyone else
// reads snapshots through State or Watch.
type SessionManager struct {
	config   core.SessionConfig
	client   core.AuthClient
	resolver *ProfileResolver
	logger   *slog.Logger

	mu    sync.Mutex
	state core.AuthState
	// epoch changes whenever the signed-in identity may have changed.
	// Profile results resolved under an older epoch are dropped.
	epoch uint64
	// applied counts auth events that changed the session. Initialize only
	// installs its fetched session if none arrived during the fetch.
	applied  uint64
	closed   bool
	sub      core.Subscription
	signOut  *signOutOp
	opSeq    uint64
	watchers map[uint64]func(core.AuthState)
	watchSeq uint64
}

// signOutOp is one in-flight sign-out. settled is closed exactly once, by
// whichever of completion, recovery, signed_out event or Close gets there
// first.
type signOutOp struct {
	id      uint64
	cancel  context.CancelFunc
	stop    func() bool
	settled chan struct{}
}

func NewSessionManager(config core.SessionConfig, client core.AuthClient, resolver *ProfileResolver, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = core.DefaultSessionConfig().RecoveryTimeout
	}
	return &SessionManager{
		config:   config,
		client:   client,
		resolver: resolver,
		logger:   logger.With("component", "session_manager"),
		state:    core.AuthState{Phase: core.PhaseUninitialized, Loading: true},
		watchers: make(map[uint64]func(core.AuthState)),
	}
}

// Start subscribes to the auth change stream and then loads the current
// session. Events that arrive while the initial load is in flight take
// precedence over its result.
func (m *SessionManager) Start(ctx context.Context) {
	sub := m.client.OnAuthStateChange(m.HandleEvent)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.sub = sub
	m.mu.Unlock()

	m.Initialize(ctx)
}

// Initialize fetches the current session once. It never fails: errors are
// logged and leave the manager unauthenticated, and loading is always
// cleared at the end.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	applied := m.applied
	m.state.Phase = core.PhaseLoading
	m.state.Loading = true
	snap := m.commit()
	m.mu.Unlock()
	m.notify(snap)

	session, err := m.client.GetSession(ctx)
	if err != nil {
		m.logger.Warn("failed to get current session", "error", err)
	}

	m.mu.Lock()
	if m.closed || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	if m.applied != applied {
		// A token_refreshed installed a newer session for the same identity
		// while the fetch was in flight.
		user := m.state.User
		m.mu.Unlock()
		m.logger.Debug("keeping session delivered during initialize")
		if user != nil {
			m.resolveProfile(ctx, epoch, user)
		}
		return
	}
	if err != nil || session == nil || session.User == nil {
		m.clearLocked()
		snap = m.commit()
		m.mu.Unlock()
		m.notify(snap)
		return
	}
	m.setSessionLocked(session)
	snap = m.commit()
	m.mu.Unlock()
	m.notify(snap)

	m.resolveProfile(ctx, epoch, session.User)
}

// HandleEvent applies one auth change event. It is the handler registered
// with the auth client and may also be called directly.
func (m *SessionManager) HandleEvent(ctx context.Context, event core.AuthEvent) {
	if event.Kind == core.EventSignedOut || event.Session == nil || event.Session.User == nil {
		m.handleSignedOut(event)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.state.Phase == core.PhaseSigningOut {
		m.mu.Unlock()
		m.logger.Debug("ignoring auth event during sign out", "event", event.Kind.String())
		authEventsTotal.WithLabelValues(event.Kind.String(), outcomeIgnored).Inc()
		return
	}

	switch event.Kind {
	case core.EventSignedIn:
		m.applied++
		m.epoch++
		epoch := m.epoch
		m.setSessionLocked(event.Session)
		snap := m.commit()
		m.mu.Unlock()
		m.notify(snap)
		authEventsTotal.WithLabelValues(event.Kind.String(), outcomeApplied).Inc()
		m.logger.Info("signed in",
			"user_id", event.Session.User.ID,
			"token", crypto.Fingerprint(event.Session.AccessToken),
		)

		m.resolveProfile(ctx, epoch, event.Session.User)

	case core.EventTokenRefreshed:
		m.applied++
		m.state.User = event.Session.User
		m.state.Session = event.Session
		m.state.Phase = core.PhaseAuthenticated
		m.state.Loading = false
		snap := m.commit()
		m.mu.Unlock()
		m.notify(snap)
		authEventsTotal.WithLabelValues(event.Kind.String(), outcomeApplied).Inc()
		m.logger.Debug("token refreshed", "user_id", event.Session.User.ID)

	default:
		m.mu.Unlock()
		authEventsTotal.WithLabelValues(event.Kind.String(), outcomeIgnored).Inc()
		m.logger.Warn("unknown auth event", "event", event.Kind.String())
	}
}

// handleSignedOut clears everything unconditionally, settling any sign-out
// in progress and invalidating in-flight profile fetches.
func (m *SessionManager) handleSignedOut(event core.AuthEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	op := m.signOut
	m.signOut = nil
	m.applied++
	m.epoch++
	m.clearLocked()
	snap := m.commit()
	m.mu.Unlock()

	if op != nil {
		op.settle()
		signOutsTotal.WithLabelValues(signOutEvent).Inc()
	}
	m.notify(snap)
	authEventsTotal.WithLabelValues(core.EventSignedOut.String(), outcomeApplied).Inc()
	m.logger.Info("signed out", "event", event.Kind.String())
}

// SignOut signs the current user out. Local state is cleared before the
// remote call is made. A concurrent second call returns immediately.
//
// SignOut returns once the remote call has finished or the recovery timeout
// has forced the state clear, whichever happens first.
func (m *SessionManager) SignOut(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.signOut != nil {
		m.mu.Unlock()
		m.logger.Debug("sign out already in progress")
		signOutsTotal.WithLabelValues(signOutSkipped).Inc()
		return
	}

	m.opSeq++
	opCtx, cancel := context.WithTimeout(ctx, m.config.RecoveryTimeout)
	op := &signOutOp{id: m.opSeq, cancel: cancel, settled: make(chan struct{})}
	// Fires on timeout or caller cancellation; stopped on every other path.
	op.stop = context.AfterFunc(opCtx, func() { m.recoverSignOut(op) })
	m.signOut = op

	m.epoch++
	m.state = core.AuthState{
		Version:    m.state.Version,
		Phase:      core.PhaseSigningOut,
		Loading:    true,
		SigningOut: true,
	}
	snap := m.commit()
	m.mu.Unlock()
	m.notify(snap)

	m.logger.Info("signing out", "op", op.id)

	done := make(chan error, 1)
	go func() { done <- m.client.SignOut(opCtx) }()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn("remote sign out failed", "error", err)
		}
		if m.finishSignOut(op) {
			if err != nil {
				signOutsTotal.WithLabelValues(signOutFailed).Inc()
			} else {
				signOutsTotal.WithLabelValues(signOutCompleted).Inc()
			}
		}
	case <-op.settled:
	}
}

// finishSignOut is the final step of a sign-out. It reports false when op
// had already been settled by another path.
func (m *SessionManager) finishSignOut(op *signOutOp) bool {
	m.mu.Lock()
	if m.signOut != op {
		m.mu.Unlock()
		return false
	}
	m.signOut = nil
	m.clearLocked()
	snap := m.commit()
	m.mu.Unlock()

	op.settle()
	m.notify(snap)
	return true
}

func (m *SessionManager) recoverSignOut(op *signOutOp) {
	if m.finishSignOut(op) {
		signOutsTotal.WithLabelValues(signOutRecovered).Inc()
		m.logger.Warn("sign out did not complete in time, state forcibly cleared",
			"timeout", m.config.RecoveryTimeout,
		)
	}
}

// settle stops the recovery timer and releases waiters. Callers must have
// detached op from the manager first so this runs once.
func (op *signOutOp) settle() {
	op.stop()
	op.cancel()
	close(op.settled)
}

// RefreshProfile re-resolves the current user's profile. It is a no-op while
// signing out and returns ErrNoSession without a user.
func (m *SessionManager) RefreshProfile(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.state.Phase == core.PhaseSigningOut {
		m.mu.Unlock()
		return nil
	}
	user := m.state.User
	epoch := m.epoch
	m.mu.Unlock()

	if user == nil {
		return core.ErrNoSession
	}
	return m.resolveProfile(ctx, epoch, user)
}

// resolveProfile runs the resolver outside the lock and applies the result
// only if nothing has invalidated it meanwhile. On error the current profile
// is kept.
func (m *SessionManager) resolveProfile(ctx context.Context, epoch uint64, user *core.User) error {
	profile, err := m.resolver.Resolve(ctx, user.ID, user.Email)
	if err != nil {
		m.logger.Warn("failed to resolve profile", "user_id", user.ID, "error", err)
	}

	m.mu.Lock()
	if m.closed || m.epoch != epoch || m.state.Phase == core.PhaseSigningOut {
		m.mu.Unlock()
		m.logger.Debug("discarding stale profile result", "user_id", user.ID)
		return err
	}
	if err == nil {
		m.state.Profile = profile
	}
	m.state.Phase = core.PhaseAuthenticated
	m.state.Loading = false
	snap := m.commit()
	m.mu.Unlock()
	m.notify(snap)
	return err
}

// setSessionLocked installs a new session, dropping the profile when the
// identity changed.
func (m *SessionManager) setSessionLocked(session *core.Session) {
	if m.state.User == nil || m.state.User.ID != session.User.ID {
		m.state.Profile = nil
	}
	m.state.User = session.User
	m.state.Session = session
	m.state.Phase = core.PhaseLoading
	m.state.Loading = true
	m.state.SigningOut = false
}

func (m *SessionManager) clearLocked() {
	m.state = core.AuthState{
		Version: m.state.Version,
		Phase:   core.PhaseUnauthenticated,
	}
}

// commit bumps the version and returns the snapshot to publish.
func (m *SessionManager) commit() core.AuthState {
	m.state.Version++
	return m.state
}

func (m *SessionManager) notify(snap core.AuthState) {
	m.mu.Lock()
	fns := make([]func(core.AuthState), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// State returns the current snapshot.
func (m *SessionManager) State() core.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch registers fn for every state change. Snapshots may be delivered out
// of order from different goroutines; compare Version to discard stale ones.
func (m *SessionManager) Watch(fn func(core.AuthState)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchSeq++
	id := m.watchSeq
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Close tears the manager down. Later events and results are dropped.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.epoch++
	sub := m.sub
	op := m.signOut
	m.signOut = nil
	clear(m.watchers)
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if op != nil {
		op.settle()
	}
}
