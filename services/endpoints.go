package services

import (
	"fmt"

	"github.com/lborres/portal/core"
)

// Operation IDs shared by the endpoint table and HTTP adapters.
const (
	OpGetSession     = "getSession"
	OpSignIn         = "signInWithEmailAndPassword"
	OpSignUp         = "signUpWithEmailAndPassword"
	OpSignOut        = "signOut"
	OpResetPassword  = "requestPasswordReset"
	OpUpdatePassword = "updatePassword"
	OpRefreshProfile = "refreshProfile"
	OpGetPermissions = "getPermissions"
	OpCanAccess      = "canAccess"
	OpValidateSetup  = "validateSetup"
)

// BaseEndpoints returns the framework-agnostic portal endpoints. Adapters
// look handlers up by OperationID and enforce Metadata.Access.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/session",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpGetSession,
				Description: "Get the current auth state",
				Access:      core.AccessPublic,
			},
		},
		{
			Path:   "/sign-in",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignIn,
				Description: "Sign in a user using email and password",
				Access:      core.AccessPublic,
			},
		},
		{
			Path:   "/sign-up",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignUp,
				Description: "Register a user and provision their profile",
				Access:      core.AccessPublic,
			},
		},
		{
			Path:   "/sign-out",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignOut,
				Description: "Sign out the current user",
				Access:      core.AccessPublic,
			},
		},
		{
			Path:   "/password/reset",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpResetPassword,
				Description: "Send a password reset email",
				Access:      core.AccessPublic,
			},
		},
		{
			Path:   "/password",
			Method: "PUT",
			Metadata: core.EndpointMetadata{
				OperationID: OpUpdatePassword,
				Description: "Change the signed-in user's password",
				Access:      core.AccessAuthenticated,
			},
		},
		{
			Path:   "/profile/refresh",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpRefreshProfile,
				Description: "Re-resolve the signed-in user's profile",
				Access:      core.AccessAuthenticated,
			},
		},
		{
			Path:   "/permissions",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpGetPermissions,
				Description: "Get the resolved role and permissions",
				Access:      core.AccessAuthenticated,
			},
		},
		{
			Path:   "/can/:resource/:action",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpCanAccess,
				Description: "Check a single resource.action capability",
				Access:      core.AccessAuthenticated,
			},
		},
		{
			Path:   "/setup",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpValidateSetup,
				Description: "Validate the database and seed firm defaults",
				Access:      core.AccessAdmin,
				Permission:  "settings.manage",
			},
		},
	}
}

// EndpointRegistry holds endpoints keyed by "METHOD:PATH" and rejects
// duplicates.
type EndpointRegistry struct {
	endpoints map[string]*core.Endpoint
	order     []string
}

// NewEndpointRegistry creates a registry with the base endpoints registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{endpoints: make(map[string]*core.Endpoint)}
	if err := reg.RegisterPlugin(BaseEndpoints()); err != nil {
		panic(err) // base table is static
	}
	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// RegisterPlugin adds endpoints atomically: on any conflict, with the
// registry or within the batch, nothing is registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool, len(endpoints))
	for i := range endpoints {
		key := endpointKey(&endpoints[i])
		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("endpoint conflict: %s %s already registered", endpoints[i].Method, endpoints[i].Path)
		}
		if seen[key] {
			return fmt.Errorf("duplicate endpoint in batch: %s %s", endpoints[i].Method, endpoints[i].Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		key := endpointKey(&ep)
		r.endpoints[key] = &ep
		r.order = append(r.order, key)
	}
	return nil
}

// Endpoints returns all endpoints in registration order.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.endpoints[key])
	}
	return result
}

// Lookup finds an endpoint by operation id.
func (r *EndpointRegistry) Lookup(operationID string) (*core.Endpoint, bool) {
	for _, key := range r.order {
		if ep := r.endpoints[key]; ep.Metadata.OperationID == operationID {
			return ep, true
		}
	}
	return nil, false
}
