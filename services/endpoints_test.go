package services

import (
	"strings"
	"testing"

	"github.com/lborres/portal/core"
)

// Requirement: the base table exposes every portal operation once, with
// access levels adapters can enforce.
func TestBaseEndpoints(t *testing.T) {
	tests := []struct {
		opID       string
		wantMethod string
		wantPath   string
		wantAccess core.Access
	}{
		{OpGetSession, "GET", "/session", core.AccessPublic},
		{OpSignIn, "POST", "/sign-in", core.AccessPublic},
		{OpSignUp, "POST", "/sign-up", core.AccessPublic},
		{OpSignOut, "POST", "/sign-out", core.AccessPublic},
		{OpResetPassword, "POST", "/password/reset", core.AccessPublic},
		{OpUpdatePassword, "PUT", "/password", core.AccessAuthenticated},
		{OpRefreshProfile, "POST", "/profile/refresh", core.AccessAuthenticated},
		{OpGetPermissions, "GET", "/permissions", core.AccessAuthenticated},
		{OpCanAccess, "GET", "/can/:resource/:action", core.AccessAuthenticated},
		{OpValidateSetup, "GET", "/setup", core.AccessAdmin},
	}

	reg := NewEndpointRegistry()
	if got := len(reg.Endpoints()); got != len(tests) {
		t.Fatalf("endpoints = %d, want %d", got, len(tests))
	}

	for _, test := range tests {
		t.Run(test.opID, func(t *testing.T) {
			ep, ok := reg.Lookup(test.opID)
			if !ok {
				t.Fatalf("Lookup(%q) not found", test.opID)
			}
			if ep.Method != test.wantMethod || ep.Path != test.wantPath {
				t.Errorf("endpoint = %s %s, want %s %s", ep.Method, ep.Path, test.wantMethod, test.wantPath)
			}
			if ep.Metadata.Access != test.wantAccess {
				t.Errorf("Access = %v, want %v", ep.Metadata.Access, test.wantAccess)
			}
			if ep.Metadata.Description == "" {
				t.Error("Description should be set")
			}
		})
	}
}

// Requirement: Endpoints keeps registration order.
func TestEndpointRegistry_Order(t *testing.T) {
	reg := NewEndpointRegistry()
	base := BaseEndpoints()

	for i, ep := range reg.Endpoints()[:len(base)] {
		if ep.Metadata.OperationID != base[i].Metadata.OperationID {
			t.Errorf("endpoint %d = %s, want %s", i, ep.Metadata.OperationID, base[i].Metadata.OperationID)
		}
	}
}

// Requirement: plugin batches register atomically and reject conflicts.
func TestEndpointRegistry_RegisterPlugin(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []core.Endpoint
		wantErr   string
		wantTotal int
	}{
		{
			name: "adds new endpoints",
			endpoints: []core.Endpoint{
				{Method: "GET", Path: "/cases", Metadata: core.EndpointMetadata{OperationID: "listCases"}},
				{Method: "POST", Path: "/cases", Metadata: core.EndpointMetadata{OperationID: "createCase"}},
			},
			wantTotal: len(BaseEndpoints()) + 2,
		},
		{
			name: "conflicts with base",
			endpoints: []core.Endpoint{
				{Method: "GET", Path: "/cases"},
				{Method: "POST", Path: "/sign-in"},
			},
			wantErr:   "already registered",
			wantTotal: len(BaseEndpoints()),
		},
		{
			name: "duplicate within batch",
			endpoints: []core.Endpoint{
				{Method: "GET", Path: "/cases"},
				{Method: "GET", Path: "/cases"},
			},
			wantErr:   "duplicate",
			wantTotal: len(BaseEndpoints()),
		},
		{
			name: "same path different method",
			endpoints: []core.Endpoint{
				{Method: "DELETE", Path: "/session"},
			},
			wantTotal: len(BaseEndpoints()) + 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reg := NewEndpointRegistry()

			err := reg.RegisterPlugin(test.endpoints)

			if test.wantErr == "" && err != nil {
				t.Fatalf("RegisterPlugin() error = %v", err)
			}
			if test.wantErr != "" && (err == nil || !strings.Contains(err.Error(), test.wantErr)) {
				t.Fatalf("RegisterPlugin() error = %v, want containing %q", err, test.wantErr)
			}
			if got := len(reg.Endpoints()); got != test.wantTotal {
				t.Errorf("endpoints = %d, want %d", got, test.wantTotal)
			}
		})
	}
}
