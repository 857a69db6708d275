package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

const (
	// LocalsClaimsKey is the router locals key holding AuthClaims
	LocalsClaimsKey = "user"
	// LocalsAccountKey is the router locals key holding the live *Account
	LocalsAccountKey = "account"
)

var accountCtxKey = &contextKey{"account"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the Account in the given context
func WithContext(r context.Context, account *Account) context.Context {
	return context.WithValue(r, accountCtxKey, account)
}

// FromContext finds the account from the context.
func FromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims attached by the access gate
func GetRouterClaims(ctx router.Context) (AuthClaims, bool) {
	raw := ctx.Locals(LocalsClaimsKey)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// GetRouterAccount extracts the live account attached by the access gate
func GetRouterAccount(ctx router.Context) (*Account, bool) {
	raw := ctx.Locals(LocalsAccountKey)
	if raw == nil {
		return nil, false
	}
	account, ok := raw.(*Account)
	return account, ok && account != nil
}
