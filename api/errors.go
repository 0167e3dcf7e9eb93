package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a 401/403 from the backend: the token is missing,
// expired or revoked. It is deliberately distinct from business 4xx errors
// because the required reaction is session teardown, never a retry.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a business-level rejection of a well-formed request (booking
// conflict, validation failure on the server, ...). The message is safe to
// surface to the user verbatim.
type Error struct {
	Status  int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// errorBody matches the backend's standardized error response.
type errorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
