package auth

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the account access API on app.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	gate := controller.Gate
	r := controller.Routes

	app.Post(r.Login, controller.LoginPost).SetName("auth.login")

	app.Get(r.Profile, controller.ProfileGet, gate.Protected()).SetName("auth.profile.get")
	app.Patch(r.Profile, controller.ProfilePatch, gate.Protected()).SetName("auth.profile.patch")

	app.Post(r.Invite, controller.InvitePost, gate.Protected(InvitationManagers...)).SetName("auth.invite.post")
	app.Get(r.Invite, controller.InviteList, gate.Protected(InvitationManagers...)).SetName("auth.invite.list")

	app.Post(r.AcceptInvitation, controller.AcceptInvitationPost).SetName("auth.accept-invitation")

	app.Get(r.Session, controller.SessionGet, gate.Optional()).SetName("auth.session")

	if controller.StateMachine != nil {
		app.Patch(r.AccountStatus, controller.AccountStatusPatch, gate.Protected(RoleSuperuser)).
			SetName("auth.account.status")
	}

	return controller
}

type AuthControllerRoutes struct {
	Login            string
	Profile          string
	Invite           string
	AcceptInvitation string
	Session          string
	AccountStatus    string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       *AuthControllerRoutes
	Auther       *Auther
	Gate         *RouteAuthenticator
	Invitations  *InvitationManager
	Profiles     *UpdateProfileHandler
	StateMachine AccountStateMachine
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithAuther(a *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = a
		return c
	}
}

func WithGate(g *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Gate = g
		return c
	}
}

func WithInvitationManager(m *InvitationManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Invitations = m
		return c
	}
}

func WithProfileHandler(h *UpdateProfileHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Profiles = h
		return c
	}
}

func WithStateMachine(sm AccountStateMachine) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.StateMachine = sm
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:            "/login",
			Profile:          "/profile",
			Invite:           "/invite",
			AcceptInvitation: "/accept-invitation",
			Session:          "/session",
			AccountStatus:    "/accounts/:id/status",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Gate == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Invitations == nil {
		panic("Missing InvitationManager in auth controller...")
	}

	if c.Profiles == nil {
		panic("Missing UpdateProfileHandler in auth controller...")
	}

	if c.ErrorHandler == nil {
		logger := c.Logger
		c.ErrorHandler = func(ctx router.Context, err error) error {
			return WriteError(ctx, err, logger)
		}
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	))
}

func (a *AuthController) LoginPost(c router.Context) error {
	payload := new(LoginRequest)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, ErrInvalidRequestBody)
	}

	payload.Email = NormalizeEmail(payload.Email)
	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, err)
	}

	result, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (a *AuthController) ProfileGet(c router.Context) error {
	account, ok := GetRouterAccount(c)
	if !ok {
		return a.ErrorHandler(c, ErrAuthenticationRequired)
	}
	return c.JSON(http.StatusOK, map[string]any{"user": account})
}

func (a *AuthController) ProfilePatch(c router.Context) error {
	account, ok := GetRouterAccount(c)
	if !ok {
		return a.ErrorHandler(c, ErrAuthenticationRequired)
	}

	payload := new(UpdateProfileMessage)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, ErrInvalidRequestBody)
	}
	payload.AccountID = account.ID.String()

	updated, err := a.Profiles.Execute(c.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    updated,
	})
}

// InviteRequest is the payload to issue an invitation
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *AuthController) InvitePost(c router.Context) error {
	account, ok := GetRouterAccount(c)
	if !ok {
		return a.ErrorHandler(c, ErrAuthenticationRequired)
	}

	payload := new(InviteRequest)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, ErrInvalidRequestBody)
	}

	if payload.Role == "" {
		payload.Role = string(RoleUser)
	}

	issued, err := a.Invitations.Issue(c.Context(), account, payload.Email, payload.Role)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("invitation issued: %s", print.MaybePrettyJSON(issued))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":      "Invitation sent successfully",
		"invitationId": issued.InvitationID,
		"inviteUrl":    issued.RedemptionURL,
		"expiresAt":    issued.ExpiresAt,
	})
}

func (a *AuthController) InviteList(c router.Context) error {
	views, err := a.Invitations.List(c.Context())
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"invitations": views})
}

func (a *AuthController) AcceptInvitationPost(c router.Context) error {
	payload := new(AcceptInvitationMessage)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, ErrInvalidRequestBody)
	}

	account, err := a.Invitations.Accept(c.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Account created successfully",
		"user":    account,
	})
}

// SessionGet reports who the caller is, if anyone.
func (a *AuthController) SessionGet(c router.Context) error {
	account, ok := GetRouterAccount(c)
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
	}

	res := map[string]any{
		"authenticated": true,
		"user":          account,
	}
	if claims, ok := GetRouterClaims(c); ok {
		res["expiresAt"] = claims.Expires()
	}
	return c.JSON(http.StatusOK, res)
}

// AccountStatusRequest changes an account's lifecycle state
type AccountStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (r AccountStatusRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In(
			string(AccountStatusActive),
			string(AccountStatusSuspended),
			string(AccountStatusDisabled),
		)),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	))
}

func (a *AuthController) AccountStatusPatch(c router.Context) error {
	actor, ok := GetRouterAccount(c)
	if !ok {
		return a.ErrorHandler(c, ErrAuthenticationRequired)
	}

	payload := new(AccountStatusRequest)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, ErrInvalidRequestBody)
	}
	payload.Status = strings.ToUpper(strings.TrimSpace(payload.Status))

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, err)
	}

	account, err := a.StateMachine.Transition(
		c.Context(),
		accountActor(actor.ID.String()),
		c.Param("id"),
		AccountStatus(payload.Status),
		WithTransitionReason(payload.Reason),
	)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"user": account})
}
