package core

import "fmt"

// Phase is the lifecycle position of the process-wide auth state.
//
//	Uninitialized -> Loading -> Authenticated | Unauthenticated
//	Authenticated -> SigningOut -> Unauthenticated
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseUnauthenticated
	PhaseSigningOut
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseSigningOut:
		return "signing_out"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Loading reports whether consumers should wait before rendering.
func (p Phase) Loading() bool {
	switch p {
	case PhaseUninitialized, PhaseLoading, PhaseSigningOut:
		return true
	case PhaseAuthenticated, PhaseUnauthenticated:
		return false
	}
	return false
}

// AuthState is a read-only snapshot of the session manager.
//
// Version increases with every change so observers can drop snapshots that
// arrive out of order.
type AuthState struct {
	Version    uint64       `json:"version"`
	Phase      Phase        `json:"phase"`
	User       *User        `json:"user"`
	Session    *Session     `json:"session"`
	Profile    *UserProfile `json:"profile"`
	Loading    bool         `json:"loading"`
	SigningOut bool         `json:"signingOut"`
}

// Authenticated reports whether a user is currently signed in.
func (s AuthState) Authenticated() bool {
	return s.User != nil && s.Phase != PhaseSigningOut
}

// AccessSnapshot is the permission gate's view of the current user.
type AccessSnapshot struct {
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions"`
	Loading     bool     `json:"loading"`
}
