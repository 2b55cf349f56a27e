package identity

import (
	"strings"

	"github.com/orchard/backend/internal/domain/shared"
)

// Role is the closed set of roles a report caller can hold. Adding a role
// means adding a constant here and a case to every exhaustive switch on it.
type Role string

const (
	// RoleAdministrator bypasses ownership checks
	RoleAdministrator Role = "administrator"
	// RoleOwner is limited to the orchards the user operates
	RoleOwner Role = "owner"
)

// AllRoles returns all recognized roles
func AllRoles() []Role {
	return []Role{RoleAdministrator, RoleOwner}
}

// ParseRole converts a claim value into a Role
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdministrator:
		return RoleAdministrator, nil
	case RoleOwner:
		return RoleOwner, nil
	default:
		return "", shared.InvalidParameterf("unknown role %q", s)
	}
}

// IsValid returns true if the role is part of the closed set
func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// BypassesOwnership reports whether the role is exempt from ownership checks
func (r Role) BypassesOwnership() bool {
	switch r {
	case RoleAdministrator:
		return true
	case RoleOwner:
		return false
	default:
		return false
	}
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}
