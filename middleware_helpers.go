package auth

import (
	"context"

	"github.com/Small-Group-Org/prd-proto-hub/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the gate's claims and live account in the
// standard context for handlers that only see context.Context.
func ContextEnricherAdapter(ctx context.Context, claims jwtware.AuthClaims, account any) context.Context {
	if ac, ok := claims.(AuthClaims); ok {
		ctx = WithClaimsContext(ctx, ac)
	}
	if acc, ok := account.(*Account); ok && acc != nil {
		ctx = WithContext(ctx, acc)
	}
	return ctx
}

// RegisterValidationListeners appends listeners to a jwtware.Config.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
