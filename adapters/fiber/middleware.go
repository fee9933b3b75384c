package fiber

import (
	"net/http"
	"slices"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/pkg/crypto"
)

type localsKey uint8

const accessKey localsKey = iota

// guards builds the middleware chain for an endpoint's access level.
func guards(h core.AuthHandler, meta core.EndpointMetadata) []any {
	var chain []any
	switch meta.Access {
	case core.AccessPublic:
	case core.AccessAuthenticated:
		chain = append(chain, RequireAuthenticated(h))
	case core.AccessStaff:
		chain = append(chain, RequireAuthenticated(h), RequireStaff(h))
	case core.AccessAdmin:
		chain = append(chain, RequireAuthenticated(h), RequireRole(h, core.RoleAdmin))
	}
	if meta.Permission != "" {
		if meta.Access == core.AccessPublic {
			chain = append(chain, RequireAuthenticated(h))
		}
		chain = append(chain, RequirePermission(h, meta.Permission))
	}
	return chain
}

// RequireAuthenticated rejects requests unless a user is signed in and the
// request carries that session's access token.
func RequireAuthenticated(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return handleAuthError(c, core.ErrNoSession)
		}

		state := h.State()
		if !state.Authenticated() || state.Session == nil {
			return handleAuthError(c, core.ErrNoSession)
		}
		valid, err := crypto.VerifyToken(token, crypto.HashToken(state.Session.AccessToken))
		if err != nil || !valid {
			return handleAuthError(c, core.ErrInvalidToken)
		}

		return c.Next()
	}
}

// RequireRole admits only callers whose resolved role is one of roles.
func RequireRole(h core.AuthHandler, roles ...core.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap, ok := access(c, h)
		if !ok {
			return stillLoading(c)
		}
		for _, r := range roles {
			if snap.Role == r {
				return c.Next()
			}
		}
		return handleAuthError(c, core.ErrForbidden)
	}
}

func RequireStaff(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap, ok := access(c, h)
		if !ok {
			return stillLoading(c)
		}
		if !snap.Role.IsStaff() {
			return handleAuthError(c, core.ErrForbidden)
		}
		return c.Next()
	}
}

// RequirePermission admits only callers holding the named permission.
func RequirePermission(h core.AuthHandler, permission string) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap, ok := access(c, h)
		if !ok {
			return stillLoading(c)
		}
		if !slices.Contains(snap.Permissions, permission) {
			return handleAuthError(c, core.ErrForbidden)
		}
		return c.Next()
	}
}

// access resolves the caller's snapshot once per request. It reports false
// when resolution is still loading after the bounded wait.
func access(c fiber.Ctx, h core.AuthHandler) (core.AccessSnapshot, bool) {
	if snap, ok := c.Locals(accessKey).(core.AccessSnapshot); ok {
		return snap, true
	}
	snap := h.Access(c.Context())
	if snap.Loading {
		return snap, false
	}
	c.Locals(accessKey, snap)
	return snap, true
}

func stillLoading(c fiber.Ctx) error {
	return c.Status(http.StatusServiceUnavailable).JSON(core.ErrorResponse{
		Error: "permissions are still loading",
		Code:  http.StatusServiceUnavailable,
	})
}
