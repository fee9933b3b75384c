package core

// EndpointProvider provides a list of endpoints to register dynamically
type EndpointProvider interface {
	GetEndpoints() []Endpoint
}

// Access is the minimum standing a caller needs to reach an endpoint.
type Access uint8

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessStaff
	AccessAdmin
)

type Endpoint struct {
	Path     string
	Method   string
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	Access      Access
	// Permission, when set, must be held in addition to Access.
	Permission string
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
