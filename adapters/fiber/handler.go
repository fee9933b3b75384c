package fiber

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/services"
)

const tokenCookie = "auth_token"

// sessionResponse is what sign-in and sign-up return. It is the only place
// the access token leaves the process.
type sessionResponse struct {
	User        *core.User `json:"user"`
	AccessToken string     `json:"accessToken"`
	TokenType   string     `json:"tokenType"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type canAccessResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

func message(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(map[string]string{"message": msg})
}

// handlersFor maps operation ids to handlers bound to h.
func handlersFor(h core.AuthHandler) map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpGetSession:     handleGetSession(h),
		services.OpSignIn:         handleSignIn(h),
		services.OpSignUp:         handleSignUp(h),
		services.OpSignOut:        handleSignOut(h),
		services.OpResetPassword:  handleResetPassword(h),
		services.OpUpdatePassword: handleUpdatePassword(h),
		services.OpRefreshProfile: handleRefreshProfile(h),
		services.OpGetPermissions: handleGetPermissions(h),
		services.OpCanAccess:      handleCanAccess(h),
		services.OpValidateSetup:  handleValidateSetup(h),
	}
}

func handleGetSession(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(h.State())
	}
}

func handleSignIn(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.SignInInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		session, err := h.SignIn(c.Context(), input)
		if err != nil {
			return handleAuthError(c, err)
		}
		return writeSession(c, http.StatusOK, session)
	}
}

func handleSignUp(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.SignUpInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		result, err := h.SignUp(c.Context(), input)
		if err != nil {
			return handleAuthError(c, err)
		}
		if result.Session == nil {
			// confirmation email pending
			return c.Status(http.StatusAccepted).JSON(result)
		}
		return writeSession(c, http.StatusCreated, result.Session)
	}
}

func writeSession(c fiber.Ctx, status int, session *core.Session) error {
	c.Cookie(&fiber.Cookie{
		Name:     tokenCookie,
		Value:    session.AccessToken,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(status).JSON(sessionResponse{
		User:        session.User,
		AccessToken: session.AccessToken,
		TokenType:   session.TokenType,
		ExpiresAt:   session.ExpiresAt,
	})
}

func handleSignOut(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := h.SignOut(c.Context()); err != nil {
			return handleAuthError(c, err)
		}
		c.ClearCookie(tokenCookie)
		return message(c, http.StatusOK, "signed out successfully")
	}
}

func handleResetPassword(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req emailRequest
		if err := c.Bind().Body(&req); err != nil {
			return badBody(c)
		}
		if err := h.ResetPassword(c.Context(), req.Email); err != nil {
			return handleAuthError(c, err)
		}
		return message(c, http.StatusAccepted, "if the account exists, a reset email has been sent")
	}
}

func handleUpdatePassword(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req passwordRequest
		if err := c.Bind().Body(&req); err != nil {
			return badBody(c)
		}
		if err := h.UpdatePassword(c.Context(), req.Password); err != nil {
			return handleAuthError(c, err)
		}
		return message(c, http.StatusOK, "password updated")
	}
}

func handleRefreshProfile(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := h.RefreshProfile(c.Context()); err != nil {
			return handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(h.State().Profile)
	}
}

func handleGetPermissions(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap, _ := access(c, h)
		return c.Status(http.StatusOK).JSON(snap)
	}
}

func handleCanAccess(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := core.PermissionName(c.Params("resource"), c.Params("action"))
		snap, ok := access(c, h)
		if !ok {
			return stillLoading(c)
		}
		return c.Status(http.StatusOK).JSON(canAccessResponse{
			Permission: name,
			Allowed:    slices.Contains(snap.Permissions, name),
		})
	}
}

func handleValidateSetup(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		report, err := h.ValidateSetup(c.Context())
		if err != nil && report == nil {
			return handleAuthError(c, err)
		}
		status := http.StatusOK
		if err != nil || !report.OK() {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(report)
	}
}

// extractToken extracts the authentication token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func extractToken(c fiber.Ctx) string {
	if token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); ok && token != "" {
		return token
	}
	return c.Cookies(tokenCookie)
}

func badBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(core.ErrorResponse{
		Error: "invalid request body",
		Code:  http.StatusBadRequest,
	})
}

// handleAuthError maps portal errors to appropriate HTTP responses
func handleAuthError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)
	return c.Status(status).JSON(core.ErrorResponse{
		Error: err.Error(),
		Code:  status,
	})
}

// mapErrorToStatus maps portal error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrNoSession),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrSessionExpired):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, core.ErrProfileNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrUserExists),
		errors.Is(err, core.ErrProfileExists),
		errors.Is(err, core.ErrSignOutInProgress):
		return http.StatusConflict

	case errors.Is(err, core.ErrEmailRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrPasswordTooShort),
		errors.Is(err, core.ErrPasswordTooLong),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrInvalidRole):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrSetupStoreRequired),
		errors.Is(err, core.ErrNotImplemented):
		return http.StatusNotImplemented

	default:
		return http.StatusInternalServerError
	}
}
