package federation

import (
	"github.com/goliatone/go-errors"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

const (
	TextCodeInvalidSAMLResponse = "SAML_INVALID_RESPONSE"
	TextCodeMissingEmailClaim   = "SAML_MISSING_EMAIL"
	TextCodeNotConfigured       = "SAML_NOT_CONFIGURED"
)

// ErrInvalidSAMLResponse covers every way an IdP response can fail
// verification: signature, issuer, audience, time window and encoding.
var ErrInvalidSAMLResponse = errors.New("invalid SAML response", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSAMLResponse).
	WithCode(errors.CodeUnauthorized)

// ErrMissingEmailClaim is returned when no alias yields a usable email.
var ErrMissingEmailClaim = errors.New("email not found in SAML response", errors.CategoryAuth).
	WithTextCode(TextCodeMissingEmailClaim).
	WithCode(errors.CodeUnauthorized)

var ErrNotConfigured = errors.New("SAML single sign-on is not configured", errors.CategoryInternal).
	WithTextCode(TextCodeNotConfigured).
	WithCode(errors.CodeInternal)

// Opaque failure codes sent to the browser on the failure redirect.
const (
	FailureInvalidResponse = "sso_invalid_response"
	FailureMissingEmail    = "sso_missing_email"
	FailureAccountInactive = "sso_account_inactive"
	FailureGeneric         = "sso_failed"
)

// FailureCode maps an error to the code placed on the failure redirect.
func FailureCode(err error) string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return FailureGeneric
	}

	switch richErr.TextCode {
	case TextCodeInvalidSAMLResponse:
		return FailureInvalidResponse
	case TextCodeMissingEmailClaim:
		return FailureMissingEmail
	case auth.TextCodeAccountNotActive:
		return FailureAccountInactive
	default:
		return FailureGeneric
	}
}

// invalidResponse wraps a verification failure, keeping the cause for logs.
func invalidResponse(cause error) error {
	if cause == nil {
		return ErrInvalidSAMLResponse
	}
	return errors.Wrap(cause, ErrInvalidSAMLResponse.Category, ErrInvalidSAMLResponse.Message).
		WithTextCode(ErrInvalidSAMLResponse.TextCode).
		WithCode(ErrInvalidSAMLResponse.Code)
}
