package auth

import "strings"

// UserRole is the account's role
type UserRole string

const (
	// RoleUser is the default role for invited and SSO provisioned accounts
	RoleUser UserRole = "USER"
	// RoleAdmin can manage invitations
	RoleAdmin UserRole = "ADMIN"
	// RoleSuperuser can manage invitations and account status
	RoleSuperuser UserRole = "SUPERUSER"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	return RoleAllowed(r, GetAllRoles()...)
}

func (r UserRole) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleAdmin,
		RoleSuperuser,
	}
}

// ParseRole safely parses a string into a UserRole type.
// Matching is case insensitive.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// InvitationManagers are the roles allowed to issue and list invitations
var InvitationManagers = []UserRole{RoleSuperuser, RoleAdmin}

func roleStrings(roles []UserRole) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// RoleAllowed reports whether role is in allowed. An empty list allows every role.
func RoleAllowed(role UserRole, allowed ...UserRole) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
