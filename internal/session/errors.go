package session

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidRole indicates a turn role outside {user, assistant}.
	ErrInvalidRole = errors.New("invalid turn role")
)

// ValidRole reports whether role is one of the accepted turn roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
