package superset

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the client so callers can branch on the two
// conditions the provisioning chain cares about without string matching.
var (
	// ErrAuthExpired marks a 401/403 from any endpoint. The client never
	// re-authenticates; the caller owns the credential lifecycle.
	ErrAuthExpired = errors.New("superset session expired or rejected")

	// ErrAlreadyExists marks a conflict on a creation endpoint. Superset
	// reports duplicates as 409 or as a 422 whose message says so.
	ErrAlreadyExists = errors.New("object already exists")
)

// AuthError is returned when a credential cannot be obtained or validated.
type AuthError struct {
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("superset authentication failed (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("superset authentication failed: %s", e.Reason)
}

// APIError is a non-2xx response from the Superset API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superset %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap maps well-known statuses onto the sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthExpired
	case e.StatusCode == 409:
		return ErrAlreadyExists
	case e.StatusCode == 422 && strings.Contains(e.Body, "already exists"):
		return ErrAlreadyExists
	}
	return nil
}
