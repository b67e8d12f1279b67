package enums

import (
	"fmt"
	"strings"
)

// UserRole is the platform-level role carried in access tokens. System is
// never issued to a person; webhooks and jobs act as it.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleAdmin  UserRole = "admin"
	UserRoleSystem UserRole = "system"
)

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin, UserRoleSystem:
		return true
	default:
		return false
	}
}

// ParseUserRole converts token claims into a UserRole. System cannot be
// claimed by a token.
func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(value)))
	if role == UserRoleUser || role == UserRoleAdmin {
		return role, nil
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
