package auth

import (
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	TextCodeInsufficientPermission = "INSUFFICIENT_PERMISSIONS"
	TextCodeUserAlreadyExists      = "USER_ALREADY_EXISTS"
	TextCodeInvitationAlreadySent  = "INVITATION_ALREADY_SENT"
	TextCodeInvalidInvitation      = "INVALID_INVITATION"
	TextCodeAccountNotActive       = "ACCOUNT_NOT_ACTIVE"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeTokenMalformed         = "TOKEN_MALFORMED"
	TextCodeValidation             = "VALIDATION_FAILED"
	TextCodeInternal               = "INTERNAL_ERROR"
	TextCodeNotFound               = "NOT_FOUND"
)

// ErrInvalidCredentials is returned for every failed password login, whatever
// the underlying cause.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthenticationRequired is returned by the access gate when no live identity could be resolved
var ErrAuthenticationRequired = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientPermissions is returned when the role is not allowed on a route
var ErrInsufficientPermissions = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientPermission).
	WithCode(goerrors.CodeForbidden)

var ErrUserAlreadyExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserAlreadyExists).
	WithCode(goerrors.CodeConflict)

var ErrInvitationAlreadySent = goerrors.New("invitation already sent", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvitationAlreadySent).
	WithCode(goerrors.CodeConflict)

// ErrInvalidInvitation covers unknown, expired and already redeemed tokens alike
var ErrInvalidInvitation = goerrors.New("invalid or expired invitation", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInvitation).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountNotActive = goerrors.New("user account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotActive).
	WithCode(goerrors.CodeForbidden)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidRequestBody is returned when a payload cannot be decoded
var ErrInvalidRequestBody = goerrors.New("invalid request body", goerrors.CategoryBadInput).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash
var ErrPasswordTooLong = goerrors.New("password must be at most 72 bytes", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the low level bcrypt mismatch
var ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// validationError turns ozzo validation output into a categorized error whose
// message is the first violated field.
func validationError(err error) error {
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok || len(errs) == 0 {
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	fields := make([]string, 0, len(errs))
	details := make(map[string]any, len(errs))
	for field, fe := range errs {
		if fe == nil {
			continue
		}
		fields = append(fields, field)
		details[field] = fe.Error()
	}
	sort.Strings(fields)

	message := "invalid request"
	if len(fields) > 0 {
		message = fields[0] + ": " + errs[fields[0]].Error()
	}

	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(details)
}

// HTTPStatus maps an error to the status code used on the wire.
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
