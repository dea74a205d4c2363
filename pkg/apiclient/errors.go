package apiclient

import "fmt"

// APIError represents an RFC 7807 problem response from the control-plane
// API.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// IsAuthError returns true if this is a 401 or 403 response.
func (e *APIError) IsAuthError() bool {
	return e.Status == 401 || e.Status == 403
}

// IsNotFound returns true if this is a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.Status == 404
}

// IsConflict returns true if this is a 409 response.
func (e *APIError) IsConflict() bool {
	return e.Status == 409
}

// IsValidationError returns true if this is a 400 response.
func (e *APIError) IsValidationError() bool {
	return e.Status == 400
}
