package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lborres/portal/core"
)

// AuthService validates credential operations before handing them to the
// remote auth client. Session state follows from the client's events, not
// from these return values.
type AuthService struct {
	client   core.AuthClient
	sessions *SessionManager
	resolver *ProfileResolver
	audit    core.AuditSink // optional
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(client core.AuthClient, sessions *SessionManager, resolver *ProfileResolver, audit core.AuditSink, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		client:   client,
		sessions: sessions,
		resolver: resolver,
		audit:    audit,
		logger:   logger.With("component", "auth_service"),
		now:      time.Now,
	}
}

func (s *AuthService) SignIn(ctx context.Context, input core.SignInInput) (*core.Session, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := core.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, core.ErrPasswordRequired
	}
	if s.sessions.State().Phase == core.PhaseSigningOut {
		return nil, core.ErrSignOutInProgress
	}

	session, err := s.client.SignIn(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	s.recordSignIn(ctx, session)
	return session, nil
}

// recordSignIn writes the sign-in audit entry. Failure is logged only.
func (s *AuthService) recordSignIn(ctx context.Context, session *core.Session) {
	if s.audit == nil || session == nil || session.User == nil {
		return
	}

	now := s.now().UTC()
	entry := core.AuditEntry{
		UserID: session.User.ID,
		Action: AuditActionSignIn,
		Details: map[string]any{
			"email":     session.User.Email,
			"timestamp": now.Format(time.RFC3339),
		},
		CreatedAt: now,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record sign-in audit entry", "user_id", session.User.ID, "error", err)
	}
}

// SignUp registers a new user and provisions their profile with the given
// names. The provider may withhold the session until the email is confirmed.
func (s *AuthService) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := core.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := core.ValidateNewPassword(input.Password); err != nil {
		return nil, err
	}
	if s.sessions.State().Phase == core.PhaseSigningOut {
		return nil, core.ErrSignOutInProgress
	}

	result, err := s.client.SignUp(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	if result.User == nil {
		return result, nil
	}

	// The account exists at this point; profile problems are repaired on
	// the next sign-in by the resolver.
	if err := s.provisionNamed(ctx, result.User, input.FirstName, input.LastName); err != nil {
		s.logger.Warn("failed to provision profile after sign up", "user_id", result.User.ID, "error", err)
	} else if result.Session != nil {
		if err := s.sessions.RefreshProfile(ctx); err != nil {
			s.logger.Debug("profile refresh after sign up failed", "error", err)
		}
	}
	return result, nil
}

// provisionNamed creates the profile, or renames it when a concurrent
// sign-in already created one with placeholder names.
func (s *AuthService) provisionNamed(ctx context.Context, user *core.User, firstName, lastName string) error {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)

	profile, err := s.resolver.Provision(ctx, user, firstName, lastName)
	if err != nil {
		return err
	}

	var patch core.ProfilePatch
	if firstName != "" && profile.FirstName != firstName {
		patch.FirstName = &firstName
	}
	if lastName != "" && profile.LastName != lastName {
		patch.LastName = &lastName
	}
	if patch.Empty() {
		return nil
	}
	_, err = s.resolver.store.UpdateProfile(ctx, core.ProfileFilter{UserID: user.ID}, patch)
	return err
}

func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := core.ValidateEmail(email); err != nil {
		return err
	}
	if err := s.client.ResetPassword(ctx, email); err != nil {
		return fmt.Errorf("failed to request password reset: %w", err)
	}
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (s *AuthService) UpdatePassword(ctx context.Context, password string) error {
	if !s.sessions.State().Authenticated() {
		return core.ErrNoSession
	}
	if err := core.ValidateNewPassword(password); err != nil {
		return err
	}
	if err := s.client.UpdatePassword(ctx, password); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
