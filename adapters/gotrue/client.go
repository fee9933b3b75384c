// Package gotrue implements core.AuthClient over the GoTrue REST API used by
// hosted auth backends.
package gotrue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3/client"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/crypto"
	"github.com/lborres/portal/pkg/events"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRefreshMargin = time.Minute
)

type Config struct {
	// URL is the auth API root, e.g. https://<project>.example.co/auth/v1.
	URL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// JWTSecret, when set, is used to verify access token signatures.
	JWTSecret string
	Timeout   time.Duration
	// RefreshMargin is how long before expiry the auto-refresh loop renews
	// the session.
	RefreshMargin time.Duration
	Logger        *slog.Logger
}

// Client keeps one session in memory and mirrors the provider's
// onAuthStateChange stream as core.AuthEvents.
type Client struct {
	http          *client.Client
	jwtSecret     []byte
	refreshMargin time.Duration
	logger        *slog.Logger
	now           func() time.Time

	events events.Dispatcher

	mu      sync.Mutex
	session *core.Session
}

var _ core.AuthClient = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("gotrue: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = defaultRefreshMargin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc := client.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		hc.SetHeader("apikey", cfg.APIKey)
	}

	c := &Client{
		http:          hc,
		refreshMargin: cfg.RefreshMargin,
		logger:        cfg.Logger.With("component", "gotrue"),
		now:           time.Now,
	}
	if cfg.JWTSecret != "" {
		c.jwtSecret = []byte(cfg.JWTSecret)
	}
	return c, nil
}

func (c *Client) OnAuthStateChange(handler core.AuthEventHandler) core.Subscription {
	return c.events.Subscribe(handler)
}

func (c *Client) current() *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// GetSession returns the held session, refreshing it first when expired.
func (c *Client) GetSession(ctx context.Context) (*core.Session, error) {
	session := c.current()
	if session == nil || !session.Expired(c.now()) {
		return session, nil
	}
	return c.refresh(ctx, session)
}

func (c *Client) SignIn(ctx context.Context, input core.SignInInput) (*core.Session, error) {
	var payload tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", "", map[string]string{"grant_type": "password"},
		credentials{Email: input.Email, Password: input.Password}, &payload)
	if err != nil {
		return nil, err
	}

	session, err := c.sessionFrom(payload)
	if err != nil {
		return nil, err
	}
	c.install(ctx, session, core.EventSignedIn)
	return session, nil
}

func (c *Client) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	body := signUpRequest{
		Email:    input.Email,
		Password: input.Password,
		Data: map[string]string{
			"first_name": input.FirstName,
			"last_name":  input.LastName,
		},
	}
	var payload signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", "", nil, body, &payload); err != nil {
		return nil, err
	}

	// With autoconfirm the provider answers with a full session; otherwise
	// only the user comes back and a confirmation email goes out.
	if payload.AccessToken == "" {
		user := payload.user()
		if user == nil {
			return nil, fmt.Errorf("gotrue: sign up response has no user")
		}
		return &core.SignUpResult{User: user}, nil
	}

	session, err := c.sessionFrom(payload.tokenResponse)
	if err != nil {
		return nil, err
	}
	c.install(ctx, session, core.EventSignedIn)
	return &core.SignUpResult{User: session.User, Session: session}, nil
}

// SignOut revokes the session remotely. Local state is dropped and
// signed_out is emitted even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	var err error
	if session != nil {
		err = c.do(ctx, http.MethodPost, "/logout", session.AccessToken, nil, nil, nil)
		if errors.Is(err, core.ErrInvalidToken) {
			err = nil
		}
	}

	c.events.Emit(ctx, core.AuthEvent{Kind: core.EventSignedOut})
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/recover", "", nil, map[string]string{"email": email}, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	session := c.current()
	if session == nil {
		return core.ErrNoSession
	}
	return c.do(ctx, http.MethodPut, "/user", session.AccessToken, nil, map[string]string{"password": password}, nil)
}

// refresh exchanges the refresh token of old for a new session. If the
// session was replaced meanwhile the replacement is returned untouched.
func (c *Client) refresh(ctx context.Context, old *core.Session) (*core.Session, error) {
	var payload tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", "", map[string]string{"grant_type": "refresh_token"},
		map[string]string{"refresh_token": old.RefreshToken}, &payload)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) || errors.Is(err, core.ErrInvalidToken) {
			// refresh token revoked or reused
			c.mu.Lock()
			dropped := c.session == old
			if dropped {
				c.session = nil
			}
			c.mu.Unlock()
			if dropped {
				c.events.Emit(ctx, core.AuthEvent{Kind: core.EventSignedOut})
			}
			return nil, core.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	session, err := c.sessionFrom(payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session != old {
		current := c.session
		c.mu.Unlock()
		return current, nil
	}
	c.session = session
	c.mu.Unlock()

	c.logger.Debug("session refreshed", "user_id", session.User.ID, "token", crypto.Fingerprint(session.AccessToken))
	c.events.Emit(ctx, core.AuthEvent{Kind: core.EventTokenRefreshed, Session: session})
	return session, nil
}

func (c *Client) install(ctx context.Context, session *core.Session, kind core.EventKind) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.Info("session started", "user_id", session.User.ID, "token", crypto.Fingerprint(session.AccessToken))
	c.events.Emit(ctx, core.AuthEvent{Kind: kind, Session: session})
}

// StartAutoRefresh renews the session RefreshMargin before it expires until
// ctx is done. It polls at most every interval.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		session := c.current()
		if session == nil || session.ExpiresAt.IsZero() {
			continue
		}
		if c.now().Add(c.refreshMargin).Before(session.ExpiresAt) {
			continue
		}
		if _, err := c.refresh(ctx, session); err != nil {
			c.logger.Warn("auto refresh failed", "error", err)
		}
	}
}
