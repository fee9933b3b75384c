package core

import "errors"

// Authentication Related Errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password") // 401 Unauthorized
	ErrUserExists         = errors.New("user already exists")       // 409 Conflict
	ErrNoSession          = errors.New("no active session")         // 401
	ErrSignOutInProgress  = errors.New("sign out in progress")      // 409
	ErrInvalidToken       = errors.New("invalid session token")     // 401
	ErrSessionExpired     = errors.New("session expired")           // 401
)

// Profile and permission errors
var (
	ErrProfileNotFound   = errors.New("profile not found")       // 404
	ErrProfileExists     = errors.New("profile already exists")  // 409
	ErrInvalidRole       = errors.New("invalid role")            // 400
	ErrForbidden         = errors.New("insufficient permission") // 403
	ErrCacheNotFound     = errors.New("permissions not found in cache")
	ErrEmptyProfilePatch = errors.New("profile patch is empty")
)

// Validation errors (client input)
var (
	ErrEmailRequired    = errors.New("email is required")     // 400
	ErrPasswordRequired = errors.New("password is required")  // 400
	ErrPasswordTooShort = errors.New("password is too short") // 400
	ErrPasswordTooLong  = errors.New("password is too long")  // 400
	ErrInvalidEmail     = errors.New("invalid email format")  // 400
)

// Config errors (server-side configuration)
var (
	ErrAuthClientRequired      = errors.New("auth client is required")       // 500
	ErrProfileStoreRequired    = errors.New("profile store is required")     // 500
	ErrPermissionStoreRequired = errors.New("permission store is required")  // 500
	ErrSetupStoreRequired      = errors.New("setup store is not configured") // 501
)

var (
	ErrNotImplemented = errors.New("not implemented") // 501
)
