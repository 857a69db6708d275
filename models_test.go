package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in    string
		want  auth.UserRole
		valid bool
	}{
		{"USER", auth.RoleUser, true},
		{"admin", auth.RoleAdmin, true},
		{" Superuser ", auth.RoleSuperuser, true},
		{"owner", auth.UserRole("OWNER"), false},
		{"", auth.UserRole(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := auth.ParseRole(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestGetAllRoles(t *testing.T) {
	roles := auth.GetAllRoles()
	assert.Equal(t, []auth.UserRole{auth.RoleUser, auth.RoleAdmin, auth.RoleSuperuser}, roles)
	for _, r := range roles {
		assert.True(t, r.IsValid())
	}
	assert.False(t, auth.UserRole("GUEST").IsValid())
	assert.False(t, auth.UserRole("user").IsValid())
}

func TestRoleAllowed(t *testing.T) {
	assert.True(t, auth.RoleAllowed(auth.RoleUser))
	assert.True(t, auth.RoleAllowed(auth.RoleAdmin, auth.InvitationManagers...))
	assert.True(t, auth.RoleAllowed(auth.RoleSuperuser, auth.InvitationManagers...))
	assert.False(t, auth.RoleAllowed(auth.RoleUser, auth.InvitationManagers...))
}

func TestAccount_Helpers(t *testing.T) {
	var missing *auth.Account
	assert.False(t, missing.IsActive())
	assert.False(t, missing.HasPassword())
	missing.EnsureStatus()

	legacy := &auth.Account{PasswordHash: "$2a$10$hash"}
	legacy.EnsureStatus()
	assert.Equal(t, auth.AccountStatusActive, legacy.Status)
	assert.True(t, legacy.IsActive())
	assert.True(t, legacy.HasPassword())

	suspended := &auth.Account{Status: auth.AccountStatusSuspended}
	assert.False(t, suspended.IsActive())
	assert.False(t, suspended.HasPassword())

	assert.True(t, auth.AccountStatusDisabled.IsValid())
	assert.False(t, auth.AccountStatus("ARCHIVED").IsValid())
}

func TestAccountIdentity(t *testing.T) {
	id := uuid.New()
	identity := auth.AccountIdentity(&auth.Account{ID: id, Email: "a@example.com", Role: auth.RoleAdmin})
	assert.Equal(t, id.String(), identity.ID())
	assert.Equal(t, "a@example.com", identity.Email())
	assert.Equal(t, "ADMIN", identity.Role())

	empty := auth.AccountIdentity(nil)
	assert.Empty(t, empty.ID())
	assert.Empty(t, empty.Email())
	assert.Empty(t, empty.Role())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bob@example.com", auth.NormalizeEmail("  Bob@EXAMPLE.com\t"))
}
