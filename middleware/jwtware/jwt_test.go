package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Small-Group-Org/prd-proto-hub/middleware/jwtware"
)

type testClaims struct {
	id   string
	role string
}

func (c testClaims) Subject() string          { return c.id }
func (c testClaims) UserID() string           { return c.id }
func (c testClaims) Role() string             { return c.role }
func (c testClaims) HasRole(role string) bool { return c.role == role }

type ctxKey struct{}

var errBadToken = errors.New("bad token")

func validator(tokens map[string]testClaims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
		claims, ok := tokens[raw]
		if !ok {
			return nil, errBadToken
		}
		return claims, nil
	})
}

func mount(handler router.HandlerFunc, mw router.MiddlewareFunc) *fiber.App {
	srv := router.NewFiberAdapter()
	srv.Router().Get("/", handler, mw)
	return srv.WrappedRouter()
}

func newApp(cfg jwtware.Config) *fiber.App {
	return mount(func(c router.Context) error {
		claims, _ := c.Locals("user").(jwtware.AuthClaims)
		account := c.Locals("account")
		fromCtx, _ := c.Context().Value(ctxKey{}).(string)

		body := "anon"
		if claims != nil {
			body = claims.UserID()
		}
		if account != nil {
			body += "|" + account.(string)
		}
		if fromCtx != "" {
			body += "|ctx:" + fromCtx
		}
		return c.SendString(body)
	}, jwtware.New(cfg))
}

func do(t *testing.T, app *fiber.App, authorization string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	res, err := app.Test(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1", role: "USER"}}),
	})

	status, body := do(t, app, "Bearer good")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1", body)

	status, _ = do(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, "Basic good")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestJWTWare_LivenessCheckRunsAfterValidation(t *testing.T) {
	calls := 0
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{
			"live":      {id: "u1", role: "USER"},
			"suspended": {id: "u2", role: "USER"},
		}),
		LivenessChecker: func(ctx context.Context, claims jwtware.AuthClaims) (any, error) {
			calls++
			if claims.UserID() == "u2" {
				return nil, jwtware.ErrAccountNotLive
			}
			return "acct-" + claims.UserID(), nil
		},
	})

	status, body := do(t, app, "Bearer live")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1|acct-u1", body)

	status, _ = do(t, app, "Bearer suspended")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, "Bearer unknown")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 2, calls, "liveness is not consulted for invalid tokens")
}

func TestJWTWare_AllowedRoles(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{
			"admin": {id: "a", role: "ADMIN"},
			"user":  {id: "u", role: "USER"},
		}),
		AllowedRoles: []string{"SUPERUSER", "ADMIN"},
	})

	status, _ := do(t, app, "Bearer admin")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, "Bearer user")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status, "authentication is checked before roles")
}

func TestJWTWare_RoleCheckAfterLiveness(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"user": {id: "u", role: "USER"}}),
		LivenessChecker: func(context.Context, jwtware.AuthClaims) (any, error) {
			return nil, jwtware.ErrAccountNotLive
		},
		AllowedRoles: []string{"ADMIN"},
	})

	status, _ := do(t, app, "Bearer user")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestJWTWare_Optional(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{
			"live": {id: "u1", role: "USER"},
			"dead": {id: "u2", role: "USER"},
		}),
		LivenessChecker: func(_ context.Context, claims jwtware.AuthClaims) (any, error) {
			if claims.UserID() == "u2" {
				return nil, jwtware.ErrAccountNotLive
			}
			return "acct", nil
		},
		AllowedRoles: []string{"ADMIN"},
		Optional:     true,
	})

	status, body := do(t, app, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anon", body)

	status, body = do(t, app, "Bearer broken")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anon", body)

	status, body = do(t, app, "Bearer dead")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anon", body)

	status, body = do(t, app, "Bearer live")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1|acct", body)
}

func TestJWTWare_ContextEnricher(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1"}}),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims, _ any) context.Context {
			return context.WithValue(ctx, ctxKey{}, claims.UserID())
		},
	})

	status, body := do(t, app, "Bearer good")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1|ctx:u1", body)
}

func TestJWTWare_CustomErrorHandler(t *testing.T) {
	var seen error
	app := newApp(jwtware.Config{
		TokenValidator: validator(nil),
		ErrorHandler: func(c router.Context, err error) error {
			seen = err
			return c.Status(http.StatusTeapot).SendString("nope")
		},
	})

	status, _ := do(t, app, "")
	assert.Equal(t, http.StatusTeapot, status)
	assert.ErrorIs(t, seen, jwtware.ErrJWTMissingOrMalformed)

	status, _ = do(t, app, "Bearer x")
	assert.Equal(t, http.StatusTeapot, status)
	assert.ErrorIs(t, seen, errBadToken)
}

func TestJWTWare_FilterFunction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(nil),
		Filter: func(c router.Context) bool {
			return c.Header("X-Skip") == "yes"
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Skip", "yes")
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	app := mount(func(c router.Context) error {
		return c.SendString(c.Locals("user").(jwtware.AuthClaims).UserID())
	}, jwtware.New(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"c00kie": {id: "u1"}, "q": {id: "u2"}}),
		TokenLookup:    "header:Authorization,cookie:jwt,query:auth_token",
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "c00kie"})
	res, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "u1", string(body))

	req = httptest.NewRequest(http.MethodGet, "/?auth_token=q", nil)
	res, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	assert.Equal(t, "u2", string(body))
}

func TestJWTWare_Extractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, cookie:jwt, query:token, param:id, bogus")
	assert.Len(t, extractors, 4)
}

func TestJWTWare_PanicsWithoutValidator(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}
