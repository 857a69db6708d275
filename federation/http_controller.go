package federation

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-router"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

// ServiceProviderEndpoints is what the controller needs from the SP.
type ServiceProviderEndpoints interface {
	LoginURL(relayState string) (string, error)
	Metadata() ([]byte, error)
	Config() Config
}

// HTTPController serves the SAML login, callback and metadata routes.
type HTTPController struct {
	sp            ServiceProviderEndpoints
	authenticator *SSOAuthenticator
	logger        auth.Logger
}

func NewHTTPController(sp ServiceProviderEndpoints, authenticator *SSOAuthenticator) *HTTPController {
	if sp == nil {
		panic("Missing service provider in saml controller...")
	}
	if authenticator == nil {
		panic("Missing SSOAuthenticator in saml controller...")
	}
	return &HTTPController{
		sp:            sp,
		authenticator: authenticator,
		logger:        auth.DefaultLogger(),
	}
}

func (h *HTTPController) WithLogger(logger auth.Logger) *HTTPController {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// RegisterSAMLRoutes mounts the controller relative to app, usually /api/auth/saml.
func RegisterSAMLRoutes[T any](app router.Router[T], h *HTTPController) {
	app.Get("/login", h.Login).SetName("auth.saml.login")
	app.Post("/callback", h.CallbackPOST).SetName("auth.saml.callback.post")
	app.Get("/callback", h.CallbackRedirect).SetName("auth.saml.callback.redirect")
	app.Get("/metadata", h.Metadata).SetName("auth.saml.metadata")
}

func (h *HTTPController) Login(c router.Context) error {
	location, err := h.sp.LoginURL(c.Query("RelayState", ""))
	if err != nil {
		h.logger.Error("saml login url failed: %v", err)
		return h.fail(c, err)
	}
	return c.Redirect(location, http.StatusFound)
}

func (h *HTTPController) CallbackPOST(c router.Context) error {
	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		return h.fail(c, invalidResponse(err))
	}

	result, err := h.authenticator.LoginPOST(c.Context(), form)
	if err != nil {
		return h.fail(c, err)
	}
	return h.succeed(c, result)
}

func (h *HTTPController) CallbackRedirect(c router.Context) error {
	rawQuery := ""
	if _, query, ok := strings.Cut(c.OriginalURL(), "?"); ok {
		rawQuery = query
	}

	result, err := h.authenticator.LoginRedirect(c.Context(), rawQuery)
	if err != nil {
		return h.fail(c, err)
	}
	return h.succeed(c, result)
}

func (h *HTTPController) Metadata(c router.Context) error {
	body, err := h.sp.Metadata()
	if err != nil {
		h.logger.Error("saml metadata render failed: %v", err)
		return auth.WriteError(c, err, h.logger)
	}
	c.SetHeader("Content-Type", "application/xml")
	return c.Send(body)
}

func (h *HTTPController) succeed(c router.Context, result *LoginResult) error {
	cfg := h.sp.Config()
	return c.Redirect(appURL(cfg.AppBaseURL, cfg.SuccessPath, "token", result.Token), http.StatusSeeOther)
}

// fail sends the browser back with an opaque code only.
func (h *HTTPController) fail(c router.Context, err error) error {
	cfg := h.sp.Config()
	return c.Redirect(appURL(cfg.AppBaseURL, cfg.FailurePath, "error", FailureCode(err)), http.StatusSeeOther)
}

func appURL(base, path, key, value string) string {
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + url.Values{key: {value}}.Encode()
}
