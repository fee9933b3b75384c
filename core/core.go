package core

import (
	"log/slog"
	"time"
)

// DefaultBootstrapAdminEmail is the single reserved identity that is
// provisioned as admin on first sign-in.
const DefaultBootstrapAdminEmail = "admin@legalportal.com"

type SessionConfig struct {
	// RecoveryTimeout bounds how long a remote sign-out may hang before the
	// local state is forcibly cleared.
	RecoveryTimeout time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RecoveryTimeout: 5 * time.Second,
	}
}

type PermissionConfig struct {
	// Timeout bounds a single role/permission resolution.
	Timeout time.Duration
	// BootstrapAdminEmail forces role admin for this exact address.
	BootstrapAdminEmail string
}

func DefaultPermissionConfig() PermissionConfig {
	return PermissionConfig{
		Timeout:             3 * time.Second,
		BootstrapAdminEmail: DefaultBootstrapAdminEmail,
	}
}

type Config struct {
	AuthClient  AuthClient
	Profiles    ProfileStore
	Permissions PermissionStore

	// Optional config
	HTTP             HTTPAdapter
	CacheAdapter     PermissionCache
	DisableCache     bool
	Audit            AuditSink
	Setup            SetupStore
	SessionConfig    *SessionConfig
	PermissionConfig *PermissionConfig
	Logger           *slog.Logger
	BasePath         string
}
