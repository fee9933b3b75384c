package gotrue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lborres/portal/core"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

// signUpResponse is either a token response or a bare user object.
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (r signUpResponse) user() *core.User {
	if r.User != nil && r.User.ID != "" {
		return &core.User{ID: r.User.ID, Email: r.User.Email}
	}
	if r.ID != "" {
		return &core.User{ID: r.ID, Email: r.Email}
	}
	return nil
}

// APIError is a non-2xx answer that maps to no portal sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
}

type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// decodeError maps a provider error response to a portal sentinel where one
// applies.
func decodeError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	code := eb.ErrorCode
	if code == "" {
		code = eb.Error
	}
	msg := eb.Msg
	for _, alt := range []string{eb.Message, eb.ErrorDescription} {
		if msg == "" {
			msg = alt
		}
	}

	switch {
	case code == "invalid_grant", code == "invalid_credentials":
		return core.ErrInvalidCredentials
	case code == "user_already_exists", code == "email_exists",
		strings.Contains(strings.ToLower(msg), "already registered"):
		return core.ErrUserExists
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return core.ErrInvalidToken
	}
	return &APIError{Status: status, Code: code, Message: msg}
}

func (c *Client) do(ctx context.Context, method, path, bearer string, params map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetParams(params)
	}
	if bearer != "" {
		req.SetHeader("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.SetJSON(body)
	}

	resp, err := req.Custom(path, method)
	if err != nil {
		return fmt.Errorf("gotrue %s %s: %w", method, path, err)
	}
	defer resp.Close()

	if status := resp.StatusCode(); status < 200 || status > 299 {
		return decodeError(status, resp.Body())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("gotrue %s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// accessClaims are the access token claims the portal reads.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Client) parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if c.jwtSecret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	return claims, nil
}

// sessionFrom builds a session from a token response, filling the user and
// expiry from the access token claims when the response omits them.
func (c *Client) sessionFrom(payload tokenResponse) (*core.Session, error) {
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", core.ErrInvalidToken)
	}

	claims, err := c.parseAccessToken(payload.AccessToken)
	if err != nil {
		return nil, err
	}

	session := &core.Session{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
	}

	switch {
	case payload.User != nil && payload.User.ID != "":
		session.User = &core.User{ID: payload.User.ID, Email: payload.User.Email}
	case claims.Subject != "":
		session.User = &core.User{ID: claims.Subject, Email: claims.Email}
	default:
		return nil, fmt.Errorf("%w: no subject", core.ErrInvalidToken)
	}

	switch {
	case payload.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(payload.ExpiresAt, 0)
	case payload.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if session.TokenType == "" {
		session.TokenType = "bearer"
	}
	return session, nil
}
