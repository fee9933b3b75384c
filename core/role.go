package core

import "fmt"

// Role is the access level attached to a profile.
//
// The set is closed: adding a role means adding a constant here and extending
// every switch below.
type Role uint8

const (
	// RoleUnknown is the zero value: no role has been resolved yet.
	RoleUnknown Role = iota
	RoleClient
	RoleParalegal
	RoleAttorney
	RoleAdmin
)

// Roles lists every assignable role.
var Roles = []Role{RoleAdmin, RoleAttorney, RoleParalegal, RoleClient}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleAttorney:
		return "attorney"
	case RoleParalegal:
		return "paralegal"
	case RoleClient:
		return "client"
	case RoleUnknown:
		return ""
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ParseRole maps the stored role name to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return RoleAdmin, nil
	case "attorney":
		return RoleAttorney, nil
	case "paralegal":
		return RoleParalegal, nil
	case "client":
		return RoleClient, nil
	case "":
		return RoleUnknown, nil
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAttorney, RoleParalegal, RoleClient:
		return true
	case RoleUnknown:
		return false
	}
	return false
}

// IsStaff reports whether r belongs to firm staff (admin, attorney or paralegal).
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleAttorney, RoleParalegal:
		return true
	case RoleClient, RoleUnknown:
		return false
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if r != RoleUnknown && !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
