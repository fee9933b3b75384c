package portal

import (
	"context"
	"log/slog"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/cache"
	"github.com/lborres/portal/services"
)

// interfaces
type (
	AuthClient      = core.AuthClient
	ProfileStore    = core.ProfileStore
	PermissionStore = core.PermissionStore
	PermissionCache = core.PermissionCache
	AuditSink       = core.AuditSink
	SetupStore      = core.SetupStore

	HTTPAdapter = core.HTTPAdapter
	AuthHandler = core.AuthHandler
)

// structs
type (
	Config           = core.Config
	SessionConfig    = core.SessionConfig
	PermissionConfig = core.PermissionConfig
	CacheConfig      = core.CacheConfig
)

type (
	Role           = core.Role
	User           = core.User
	Session        = core.Session
	UserProfile    = core.UserProfile
	AuthState      = core.AuthState
	AccessSnapshot = core.AccessSnapshot
	SetupReport    = core.SetupReport
	CacheStats     = core.CacheStats
)

const (
	defaultBasePath = "/api/auth"
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache        = cache.NewInMemoryCache
	DefaultSessionConfig    = core.DefaultSessionConfig
	DefaultPermissionConfig = core.DefaultPermissionConfig
	ParseRole               = core.ParseRole
)

var (
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrUserExists         = core.ErrUserExists
	ErrNoSession          = core.ErrNoSession
	ErrSignOutInProgress  = core.ErrSignOutInProgress
	ErrProfileNotFound    = core.ErrProfileNotFound
	ErrForbidden          = core.ErrForbidden
)

var (
	ErrAuthClientRequired      = core.ErrAuthClientRequired
	ErrProfileStoreRequired    = core.ErrProfileStoreRequired
	ErrPermissionStoreRequired = core.ErrPermissionStoreRequired
)

// Portal wires the session manager, profile resolver and permission gate
// around one auth client. Construct it once per process.
type Portal struct {
	Sessions *services.SessionManager
	Profiles *services.ProfileResolver
	Gate     *services.PermissionGate
	Auth     *services.AuthService
	Setup    *services.SetupValidator
	BasePath string

	logger *slog.Logger
}

var _ core.AuthHandler = (*Portal)(nil)

func New(config Config) (*Portal, error) {
	if config.AuthClient == nil {
		return nil, ErrAuthClientRequired
	}
	if config.Profiles == nil {
		return nil, ErrProfileStoreRequired
	}
	if config.Permissions == nil {
		return nil, ErrPermissionStoreRequired
	}

	// Set Defaults

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	permissionCache := config.CacheAdapter
	if permissionCache == nil && !config.DisableCache {
		permissionCache = NewInMemoryCache(CacheConfig{})
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	permissionConfig := DefaultPermissionConfig()
	if config.PermissionConfig != nil {
		permissionConfig = *config.PermissionConfig
	}
	if permissionConfig.BootstrapAdminEmail != "" {
		logger.Warn("bootstrap admin email configured, its first sign-in is granted admin; replace with an invitation flow before production",
			"email", permissionConfig.BootstrapAdminEmail,
		)
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	resolver := services.NewProfileResolver(config.Profiles, permissionConfig.BootstrapAdminEmail, logger)
	sessions := services.NewSessionManager(sessionConfig, config.AuthClient, resolver, logger)
	gate := services.NewPermissionGate(permissionConfig, sessions, config.Profiles, config.Permissions, permissionCache, logger)

	p := &Portal{
		Sessions: sessions,
		Profiles: resolver,
		Gate:     gate,
		Auth:     services.NewAuthService(config.AuthClient, sessions, resolver, config.Audit, logger),
		Setup:    services.NewSetupValidator(config.Setup, logger),
		BasePath: basePath,
		logger:   logger,
	}

	if config.HTTP != nil {
		if err := config.HTTP.RegisterRoutes(p, basePath); err != nil {
			p.Close()
			return nil, err
		}
	}

	return p, nil
}

// Start subscribes to the auth client and loads the current session.
func (p *Portal) Start(ctx context.Context) {
	p.Sessions.Start(ctx)
}

func (p *Portal) Close() {
	p.Gate.Close()
	p.Sessions.Close()
}

func (p *Portal) State() core.AuthState {
	return p.Sessions.State()
}

// Access waits for the current permission resolution, bounded by ctx and
// the gate's own timeout.
func (p *Portal) Access(ctx context.Context) core.AccessSnapshot {
	return p.Gate.Wait(ctx)
}

func (p *Portal) SignIn(ctx context.Context, input core.SignInInput) (*core.Session, error) {
	return p.Auth.SignIn(ctx, input)
}

func (p *Portal) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error) {
	return p.Auth.SignUp(ctx, input)
}

// SignOut never fails: remote errors and hangs end in a cleared state.
func (p *Portal) SignOut(ctx context.Context) error {
	p.Sessions.SignOut(ctx)
	return nil
}

func (p *Portal) ResetPassword(ctx context.Context, email string) error {
	return p.Auth.ResetPassword(ctx, email)
}

func (p *Portal) UpdatePassword(ctx context.Context, password string) error {
	return p.Auth.UpdatePassword(ctx, password)
}

func (p *Portal) RefreshProfile(ctx context.Context) error {
	return p.Sessions.RefreshProfile(ctx)
}

func (p *Portal) ValidateSetup(ctx context.Context) (*core.SetupReport, error) {
	return p.Setup.Validate(ctx)
}
