package core

import (
	"context"
)

// Ports define interfaces for external dependencies

// ============================================
// AUTH PORT (remote auth provider)
// ============================================

// EventKind enumerates the auth change events pushed by the provider.
type EventKind uint8

const (
	EventSignedIn EventKind = iota + 1
	EventSignedOut
	EventTokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventTokenRefreshed:
		return "token_refreshed"
	}
	return "unknown"
}

// AuthEvent is a single change notification. Session is nil on sign-out.
type AuthEvent struct {
	Kind    EventKind
	Session *Session
}

// AuthEventHandler receives auth events in the order the provider emits them.
type AuthEventHandler func(ctx context.Context, event AuthEvent)

// Subscription detaches an AuthEventHandler.
type Subscription interface {
	Unsubscribe()
}

// AuthClient is the remote authentication/session service.
type AuthClient interface {
	// GetSession returns the current session, or nil when signed out.
	// It has no side effects beyond refreshing an expired token.
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(handler AuthEventHandler) Subscription
	SignIn(ctx context.Context, input SignInInput) (*Session, error)
	SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) error
}

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// ProfileStore is the user_profiles table.
type ProfileStore interface {
	GetProfileByUserID(ctx context.Context, userID string) (*UserProfile, error)
	GetProfileByEmail(ctx context.Context, email string) (*UserProfile, error)
	// GetRoleByUserID reads only the role column.
	GetRoleByUserID(ctx context.Context, userID string) (Role, error)
	// CreateProfile inserts p and fills in ID and timestamps.
	// Returns ErrProfileExists when a profile for p.UserID already exists.
	CreateProfile(ctx context.Context, p *UserProfile) error
	UpdateProfile(ctx context.Context, filter ProfileFilter, patch ProfilePatch) (*UserProfile, error)
}

// PermissionStore is the permissions / role_permissions catalogue.
type PermissionStore interface {
	PermissionsForRole(ctx context.Context, role Role) ([]string, error)
	AllPermissions(ctx context.Context) ([]string, error)
}

// AuditSink records audit entries. Implementations may be best-effort.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// SetupStore backs setup validation.
type SetupStore interface {
	Ping(ctx context.Context) error
	HasFirmSettings(ctx context.Context) (bool, error)
	CreateFirmSettings(ctx context.Context, settings *FirmSettings) error
	CountPermissions(ctx context.Context) (int, error)
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides portal operations for HTTP adapters
type AuthHandler interface {
	State() AuthState
	// Access waits (bounded) for permission resolution and returns the result.
	Access(ctx context.Context) AccessSnapshot
	SignIn(ctx context.Context, input SignInInput) (*Session, error)
	SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) error
	RefreshProfile(ctx context.Context) error
	ValidateSetup(ctx context.Context) (*SetupReport, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(handler AuthHandler, basePath string) error
}
