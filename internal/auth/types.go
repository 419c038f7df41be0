package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read attributes and fleet state.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally write attributes and trigger a digest.
	RoleOperator Role = "operator"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrNoSecret     = errors.New("no signing secret configured")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
