// Package auth provides JWT authentication for the control-plane API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role names recognized by the control-plane API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Claims represents the JWT claims issued for control-plane API access.
//
// There is no user database behind these claims: a token is minted
// directly from the configured signing key (see dispatchctl's token
// commands) for an operator-chosen subject and role, not looked up
// against stored credentials.
type Claims struct {
	jwt.RegisteredClaims

	// Subject is the human-readable caller identity, e.g. an operator's
	// name or a service account label. Carried in RegisteredClaims.Subject
	// as well; duplicated here for JSON convenience.
	Subject string `json:"sub_name"`

	// Role is either RoleAdmin or RoleOperator.
	Role string `json:"role"`
}

// IsAdmin returns true if the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// HasRole returns true if the token's role matches any of the given roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
