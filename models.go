package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusDisabled  AccountStatus = "DISABLED"
)

// IsValid reports whether the status is known.
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusDisabled:
		return true
	default:
		return false
	}
}

// InvitationStatus is the stored state of an invitation. Expiry is derived
// at read time and never persisted.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "PENDING"
	InvitationStatusAccepted InvitationStatus = "ACCEPTED"
	InvitationStatusExpired  InvitationStatus = "EXPIRED"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Email         string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string        `bun:"password_hash,notnull" json:"-"`
	FirstName     string        `bun:"first_name,notnull" json:"firstName"`
	LastName      string        `bun:"last_name,notnull" json:"lastName"`
	Role          UserRole      `bun:"role,notnull" json:"role"`
	Status        AccountStatus `bun:"status,notnull" json:"status"`
	InvitedByID   *uuid.UUID    `bun:"invited_by_id,type:uuid,nullzero" json:"invitedById,omitempty"`
	LastLoginAt   *time.Time    `bun:"last_login_at,nullzero" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
}

// EnsureStatus backfills the default status for legacy rows.
func (a *Account) EnsureStatus() {
	if a == nil {
		return
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountStatusActive
}

// HasPassword is false for SSO-only accounts.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// Invitation is an administrator issued, single use, time boxed grant to
// create an account.
type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:inv"`
	ID            uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	Email         string           `bun:"email,notnull" json:"email"`
	Role          UserRole         `bun:"role,notnull" json:"role"`
	Token         string           `bun:"token,notnull,unique" json:"-"`
	Status        InvitationStatus `bun:"status,notnull" json:"status"`
	ExpiresAt     time.Time        `bun:"expires_at,notnull" json:"expiresAt"`
	InvitedByID   uuid.UUID        `bun:"invited_by_id,type:uuid,notnull" json:"invitedById"`
	InvitedBy     *Account         `bun:"rel:belongs-to,join:invited_by_id=id" json:"-"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time        `bun:"updated_at,notnull" json:"updatedAt"`
}

// EffectiveStatus derives EXPIRED for pending invitations past their expiry.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i == nil {
		return ""
	}
	if i.Status == InvitationStatusPending && now.After(i.ExpiresAt) {
		return InvitationStatusExpired
	}
	return i.Status
}

// IsRedeemable reports whether the invitation can still be accepted. The
// expiry instant itself is no longer redeemable.
func (i *Invitation) IsRedeemable(now time.Time) bool {
	return i != nil && i.Status == InvitationStatusPending && now.Before(i.ExpiresAt)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareAccountDefaults(record *Account, now time.Time) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
}

// accountIdentity adapts an Account to Identity
type accountIdentity struct {
	account *Account
}

// AccountIdentity returns the Identity view of an account.
func AccountIdentity(a *Account) Identity {
	return accountIdentity{account: a}
}

func (a accountIdentity) ID() string {
	if a.account == nil {
		return ""
	}
	return a.account.ID.String()
}

func (a accountIdentity) Email() string {
	if a.account == nil {
		return ""
	}
	return a.account.Email
}

func (a accountIdentity) Role() string {
	if a.account == nil {
		return ""
	}
	return string(a.account.Role)
}

// Account exposes the underlying record.
func (a accountIdentity) Account() *Account {
	return a.account
}

var _ Identity = accountIdentity{}
