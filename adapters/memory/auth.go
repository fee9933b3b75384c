// Package memory provides in-process implementations of the portal ports.
// They back demo mode, when no auth backend or database is configured, and
// serve as realistic collaborators in tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/crypto"
	"github.com/lborres/portal/pkg/events"
)

const defaultTokenTTL = time.Hour

type account struct {
	user *core.User
	hash string
}

// AuthClient is a single-session core.AuthClient with argon2id password
// storage. Handlers are invoked synchronously, in order, on the goroutine
// that caused the event.
type AuthClient struct {
	hasher crypto.PasswordHasher
	ids    *crypto.NanoIDGenerator
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	events events.Dispatcher

	mu       sync.Mutex
	accounts map[string]*account // by email
	session  *core.Session
}

var _ core.AuthClient = (*AuthClient)(nil)

type AuthOption func(*AuthClient)

// WithHasher replaces the default argon2id parameters.
func WithHasher(h crypto.PasswordHasher) AuthOption {
	return func(c *AuthClient) { c.hasher = h }
}

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) AuthOption {
	return func(c *AuthClient) { c.ttl = ttl }
}

func WithClock(now func() time.Time) AuthOption {
	return func(c *AuthClient) { c.now = now }
}

func WithLogger(l *slog.Logger) AuthOption {
	return func(c *AuthClient) { c.logger = l }
}

func NewAuthClient(opts ...AuthOption) *AuthClient {
	ids, _ := crypto.NewNanoID()
	c := &AuthClient{
		hasher:   crypto.NewArgon2(),
		ids:      ids,
		ttl:      defaultTokenTTL,
		now:      time.Now,
		logger:   slog.Default(),
		accounts: make(map[string]*account),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "memory_auth")
	return c
}

// AddUser registers an account without signing it in.
func (c *AuthClient) AddUser(email, password string) (*core.User, error) {
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	id, err := c.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.accounts[email]; exists {
		return nil, core.ErrUserExists
	}
	user := &core.User{ID: id, Email: email}
	c.accounts[email] = &account{user: user, hash: hash}
	return user, nil
}

func (c *AuthClient) OnAuthStateChange(handler core.AuthEventHandler) core.Subscription {
	return c.events.Subscribe(handler)
}

func (c *AuthClient) newSession(user *core.User) (*core.Session, error) {
	access, err := crypto.GenerateToken()
	if err != nil {
		return nil, err
	}
	refresh, err := crypto.GenerateToken()
	if err != nil {
		return nil, err
	}
	return &core.Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    c.now().Add(c.ttl),
	}, nil
}

// GetSession returns the current session, rotating tokens when it expired.
func (c *AuthClient) GetSession(ctx context.Context) (*core.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	if current == nil || !current.Expired(c.now()) {
		return current, nil
	}

	refreshed, err := c.newSession(current.User)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	c.mu.Lock()
	if c.session != current {
		// signed out or replaced meanwhile
		refreshed = c.session
		c.mu.Unlock()
		return refreshed, nil
	}
	c.session = refreshed
	c.mu.Unlock()

	c.events.Emit(ctx, core.AuthEvent{Kind: core.EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

func (c *AuthClient) SignIn(ctx context.Context, input core.SignInInput) (*core.Session, error) {
	c.mu.Lock()
	acct, ok := c.accounts[input.Email]
	c.mu.Unlock()

	if !ok {
		// burn comparable time so unknown emails are not distinguishable
		_, _ = c.hasher.Hash(input.Password)
		return nil, core.ErrInvalidCredentials
	}
	valid, err := c.hasher.Verify(input.Password, acct.hash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}

	return c.startSession(ctx, acct.user)
}

func (c *AuthClient) startSession(ctx context.Context, user *core.User) (*core.Session, error) {
	session, err := c.newSession(user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.Info("session started", "user_id", user.ID, "token", crypto.Fingerprint(session.AccessToken))
	c.events.Emit(ctx, core.AuthEvent{Kind: core.EventSignedIn, Session: session})
	return session, nil
}

// SignUp registers and immediately signs in; there is no email confirmation
// in demo mode.
func (c *AuthClient) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	user, err := c.AddUser(input.Email, input.Password)
	if err != nil {
		return nil, err
	}
	session, err := c.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &core.SignUpResult{User: user, Session: session}, nil
}

func (c *AuthClient) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	c.events.Emit(ctx, core.AuthEvent{Kind: core.EventSignedOut})
	return nil
}

// ResetPassword only logs; there is no mail transport in demo mode.
func (c *AuthClient) ResetPassword(_ context.Context, email string) error {
	c.mu.Lock()
	_, known := c.accounts[email]
	c.mu.Unlock()

	c.logger.Info("password reset requested", "email", email, "known", known)
	return nil
}

func (c *AuthClient) UpdatePassword(_ context.Context, password string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return core.ErrNoSession
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	acct, ok := c.accounts[session.User.Email]
	if !ok {
		return core.ErrNoSession
	}
	acct.hash = hash
	return nil
}
