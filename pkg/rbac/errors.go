package rbac

import (
	"errors"
	"fmt"
)

// Sentinel errors for authorization decisions and lookups.
var (
	// ErrUnauthenticated is returned when a protected operation is invoked
	// without an authenticated identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNotFound is returned when a referenced role, permission or user
	// does not exist. Kept distinct from PermissionDeniedError so callers
	// cannot probe existence through error shapes alone; the API layer maps
	// them to different status codes deliberately.
	ErrNotFound = errors.New("not found")
)

// PermissionDeniedError is returned when an identity lacks a required
// permission. It carries the permission name for diagnosability and nothing
// about how the decision was reached.
type PermissionDeniedError struct {
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s required", e.Permission)
}

// IsPermissionDenied reports whether err is a permission denial.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}
