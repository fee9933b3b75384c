package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPhase_Loading(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseUninitialized, true},
		{PhaseLoading, true},
		{PhaseAuthenticated, false},
		{PhaseUnauthenticated, false},
		{PhaseSigningOut, true},
	}

	for _, test := range tests {
		if got := test.phase.Loading(); got != test.want {
			t.Errorf("%v.Loading() = %v, want %v", test.phase, got, test.want)
		}
	}
}

func TestAuthState_Authenticated(t *testing.T) {
	user := &User{ID: "u1", Email: "a@example.com"}

	if (AuthState{Phase: PhaseAuthenticated, User: user}).Authenticated() != true {
		t.Error("authenticated phase with user should be authenticated")
	}
	if (AuthState{Phase: PhaseSigningOut, User: user}).Authenticated() {
		t.Error("signing out should not count as authenticated")
	}
	if (AuthState{Phase: PhaseUnauthenticated}).Authenticated() {
		t.Error("no user should not be authenticated")
	}
}

// Requirement: tokens never leave the process in JSON.
func TestAuthState_JSONHidesTokens(t *testing.T) {
	state := AuthState{
		Phase: PhaseAuthenticated,
		Session: &Session{
			User:         &User{ID: "u1"},
			AccessToken:  "access-secret",
			RefreshToken: "refresh-secret",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}

	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["phase"] != "authenticated" {
		t.Errorf("phase = %v, want authenticated", decoded["phase"])
	}
	session := decoded["session"].(map[string]any)
	if _, ok := session["AccessToken"]; ok {
		t.Error("access token leaked into JSON")
	}
	if _, ok := session["accessToken"]; ok {
		t.Error("access token leaked into JSON")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()

	if (&Session{}).Expired(now) {
		t.Error("zero expiry should never expire")
	}
	if !(&Session{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Error("past expiry should be expired")
	}
	if (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Error("future expiry should not be expired")
	}
}
