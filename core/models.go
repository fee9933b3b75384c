package core

import "time"

// User is the identity issued by the remote auth provider.
//
// The portal never mutates it; it arrives inside a Session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the live credential issued by the remote auth provider.
//
// Sessions are replaced wholesale on refresh, never patched.
type Session struct {
	User         *User     `json:"user"`
	AccessToken  string    `json:"-"` // Never expose in JSON
	RefreshToken string    `json:"-"` // Never expose in JSON
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// UserProfile is the portal-level record for a user: role plus personal and
// professional attributes. At most one profile exists per UserID.
type UserProfile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Role            Role      `json:"role"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Phone           *string   `json:"phone,omitempty"`
	Address         *string   `json:"address,omitempty"`
	ProfileImageURL *string   `json:"profile_image_url,omitempty"`
	Bio             *string   `json:"bio,omitempty"`
	Department      *string   `json:"department,omitempty"`
	BarNumber       *string   `json:"bar_number,omitempty"`
	Specializations []string  `json:"specializations,omitempty"`
	HourlyRate      *float64  `json:"hourly_rate,omitempty"`
	IsActive        bool      `json:"is_active"`
	FirmID          *string   `json:"firm_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileFilter selects a single profile row. Exactly one field is expected
// to be set; ID wins over UserID, which wins over Email.
type ProfileFilter struct {
	ID     string
	UserID string
	Email  string
}

// Matches reports whether p is the row the filter selects.
func (f ProfileFilter) Matches(p *UserProfile) bool {
	switch {
	case f.ID != "":
		return p.ID == f.ID
	case f.UserID != "":
		return p.UserID == f.UserID
	default:
		return p.Email == f.Email
	}
}

// ProfilePatch is a sparse update: nil fields are left untouched.
type ProfilePatch struct {
	UserID    *string
	Role      *Role
	FirstName *string
	LastName  *string
	Phone     *string
	IsActive  *bool
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.UserID == nil && p.Role == nil && p.FirstName == nil &&
		p.LastName == nil && p.Phone == nil && p.IsActive == nil
}

// AuditEntry is a row in the audit log.
type AuditEntry struct {
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// FirmSettings holds the firm-wide branding defaults seeded at setup.
type FirmSettings struct {
	ID             string    `json:"id"`
	FirmName       string    `json:"firm_name"`
	PrimaryColor   string    `json:"primary_color"`
	SecondaryColor string    `json:"secondary_color"`
	CreatedAt      time.Time `json:"created_at"`
}

// DefaultFirmSettings returns the settings inserted when none exist.
func DefaultFirmSettings() FirmSettings {
	return FirmSettings{
		FirmName:       "LegalPortal Pro",
		PrimaryColor:   "#1e40af",
		SecondaryColor: "#7c3aed",
	}
}

// SetupReport is the outcome of a setup validation run.
type SetupReport struct {
	Connected          bool `json:"connected"`
	FirmSettingsSeeded bool `json:"firmSettingsSeeded"`
	PermissionCount    int  `json:"permissionCount"`
}

// OK reports whether the backing store is usable by the portal.
func (r SetupReport) OK() bool {
	return r.Connected && r.PermissionCount > 0
}

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// SignUpResult carries the new user. Session is nil when the provider
// requires email confirmation before the first sign-in.
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session,omitempty"`
}
