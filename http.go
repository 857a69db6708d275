package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/Small-Group-Org/prd-proto-hub/middleware/jwtware"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RouteAuthenticator builds the access gate for router routes.
type RouteAuthenticator struct {
	tokens       TokenService
	provider     IdentityProvider
	listeners    []ValidationListener
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(tokens TokenService, provider IdentityProvider) *RouteAuthenticator {
	a := &RouteAuthenticator{
		tokens:   tokens,
		provider: provider,
		Logger:   defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(logger)
	return a
}

// WithValidationListeners runs listeners after the identity resolves and
// before the role check. A listener error rejects the request.
func (a *RouteAuthenticator) WithValidationListeners(listeners ...ValidationListener) *RouteAuthenticator {
	a.listeners = append(a.listeners, listeners...)
	return a
}

// Protected requires a valid token for a live account. When roles are given
// the token role must be one of them.
func (a *RouteAuthenticator) Protected(roles ...UserRole) router.MiddlewareFunc {
	return jwtware.New(a.gateConfig(roles, false))
}

// Optional attaches the identity when one resolves and never rejects.
func (a *RouteAuthenticator) Optional() router.MiddlewareFunc {
	return jwtware.New(a.gateConfig(nil, true))
}

func (a *RouteAuthenticator) gateConfig(roles []UserRole, optional bool) jwtware.Config {
	cfg := jwtware.Config{
		ContextKey:        LocalsClaimsKey,
		AccountContextKey: LocalsAccountKey,
		AllowedRoles:      roleStrings(roles),
		Optional:          optional,
		ErrorHandler:      a.AuthErrorHandler,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, ok := a.tokens.Identify(raw)
			if !ok {
				return nil, ErrTokenMalformed
			}
			return claims, nil
		}),
		LivenessChecker: func(ctx context.Context, claims jwtware.AuthClaims) (any, error) {
			account, err := a.provider.FindActiveAccount(ctx, claims.UserID())
			if err != nil {
				return nil, err
			}
			return account, nil
		},
		ContextEnricher: ContextEnricherAdapter,
	}
	RegisterValidationListeners(&cfg, a.listeners...)
	return cfg
}

// AuthErrorHandler collapses every gate failure into one of two public errors.
func (a *RouteAuthenticator) AuthErrorHandler(c router.Context, err error) error {
	richErr := ErrAuthenticationRequired
	if errors.Is(err, jwtware.ErrRoleNotAllowed) {
		richErr = ErrInsufficientPermissions
	}

	a.Logger.Debug("access gate rejected %s %s: %v", c.Method(), c.Path(), err)
	return a.ErrorHandler(c, richErr)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	return WriteError(c, err, a.Logger)
}

// WriteError renders err as an ErrorResponse. Internal failures are reported
// with a generic message.
func WriteError(c router.Context, err error, logger Logger) error {
	status, body := errorResponse(c.Method(), c.Path(), err, logger)
	return c.JSON(status, body)
}

// FiberErrorHandler is installed as the fiber application error handler and
// covers failures raised outside router handlers, such as unknown routes.
func FiberErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
		}
		status, body := errorResponse(c.Method(), c.Path(), err, logger)
		return c.Status(status).JSON(body)
	}
}

func errorResponse(method, path string, err error, logger Logger) (int, ErrorResponse) {
	logger = normalizeLogger(logger)

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "internal server error").
			WithTextCode(TextCodeInternal).
			WithCode(goerrors.CodeInternal)
	}

	status := HTTPStatus(richErr)
	message := richErr.Message
	if status >= http.StatusInternalServerError {
		logger.Error(
			"request %s %s failed: %v details=%s",
			method, path, err, print.MaybePrettyJSON(richErr.Metadata),
		)
		message = "internal server error"
	} else {
		logger.Debug("request %s %s rejected: %s (%s)", method, path, richErr.Message, richErr.TextCode)
	}

	code := richErr.TextCode
	if code == "" {
		code = TextCodeInternal
	}

	return status, ErrorResponse{Error: message, Code: code}
}
