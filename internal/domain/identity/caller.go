package identity

import (
	"github.com/google/uuid"
)

// Caller is the authenticated principal a report is requested on behalf of
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

// NewCaller creates a caller from a user id and role
func NewCaller(userID uuid.UUID, role Role) Caller {
	return Caller{UserID: userID, Role: role}
}

// SystemCaller is the administrative identity used by background jobs
func SystemCaller() Caller {
	return Caller{UserID: uuid.Nil, Role: RoleAdministrator}
}

// IsAdministrator returns true if the caller bypasses ownership checks
func (c Caller) IsAdministrator() bool {
	return c.Role.BypassesOwnership()
}
