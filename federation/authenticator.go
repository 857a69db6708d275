package federation

import (
	"context"
	"net/url"

	"github.com/crewjam/saml"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

const tracerName = "github.com/Small-Group-Org/prd-proto-hub/federation"

// Binding names the SAML transport a response arrived on.
type Binding string

const (
	BindingPOST     Binding = "post"
	BindingRedirect Binding = "redirect"
)

// LoginResult is a completed SSO login.
type LoginResult struct {
	Token     string
	Account   *auth.Account
	IsNewUser bool
}

// TokenIssuer mints the session token for a resolved account.
// *auth.Auther satisfies it.
type TokenIssuer interface {
	IssueToken(account *auth.Account) (string, error)
}

// SSOAuthenticator turns a verified assertion into a session token.
type SSOAuthenticator struct {
	validator    AssertionValidator
	provisioner  *Provisioner
	issuer       TokenIssuer
	aliases      ClaimAliases
	activitySink auth.ActivitySink
	logger       auth.Logger
	tracer       trace.Tracer
}

func NewSSOAuthenticator(validator AssertionValidator, provisioner *Provisioner, issuer TokenIssuer) *SSOAuthenticator {
	return &SSOAuthenticator{
		validator:   validator,
		provisioner: provisioner,
		issuer:      issuer,
		aliases:     DefaultClaimAliases,
		logger:      auth.DefaultLogger(),
		tracer:      otel.Tracer(tracerName),
	}
}

func (s *SSOAuthenticator) WithLogger(logger auth.Logger) *SSOAuthenticator {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *SSOAuthenticator) WithActivitySink(sink auth.ActivitySink) *SSOAuthenticator {
	s.activitySink = sink
	return s
}

// WithClaimAliases replaces the attribute alias table.
func (s *SSOAuthenticator) WithClaimAliases(aliases ClaimAliases) *SSOAuthenticator {
	s.aliases = aliases
	return s
}

// LoginPOST completes a login delivered with the HTTP-POST binding.
func (s *SSOAuthenticator) LoginPOST(ctx context.Context, form url.Values) (*LoginResult, error) {
	return s.login(ctx, BindingPOST, func() (*saml.Assertion, error) {
		return s.validator.ValidatePOST(form)
	})
}

// LoginRedirect completes a login delivered with the HTTP-Redirect binding.
func (s *SSOAuthenticator) LoginRedirect(ctx context.Context, rawQuery string) (*LoginResult, error) {
	return s.login(ctx, BindingRedirect, func() (*saml.Assertion, error) {
		return s.validator.ValidateRedirect(rawQuery)
	})
}

func (s *SSOAuthenticator) login(ctx context.Context, binding Binding, validate func() (*saml.Assertion, error)) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.saml.login", trace.WithAttributes(
		attribute.String("saml.binding", string(binding)),
	))
	defer span.End()

	result, email, err := s.resolve(ctx, validate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureCode(err))
		s.logger.Info("saml login failed (%s binding): %v", binding, err)
		auth.EmitActivity(ctx, s.activitySink, s.logger, auth.ActivityEvent{
			EventType:  auth.ActivityEventSSOLoginFailed,
			Actor:      auth.ActorRef{Type: auth.ActorTypeAnonymous},
			EntityType: auth.EntityTypeUser,
			Metadata: map[string]any{
				"email":   email,
				"reason":  FailureCode(err),
				"binding": string(binding),
			},
		})
		return nil, err
	}

	id := result.Account.ID.String()
	span.SetAttributes(
		attribute.String("account.id", id),
		attribute.Bool("account.new", result.IsNewUser),
	)

	auth.EmitActivity(ctx, s.activitySink, s.logger, auth.ActivityEvent{
		EventType:  auth.ActivityEventSSOLogin,
		Actor:      auth.ActorRef{ID: id, Type: auth.ActorTypeAccount},
		EntityType: auth.EntityTypeUser,
		EntityID:   id,
		Metadata: map[string]any{
			"email":   result.Account.Email,
			"binding": string(binding),
		},
	})

	return result, nil
}

func (s *SSOAuthenticator) resolve(ctx context.Context, validate func() (*saml.Assertion, error)) (*LoginResult, string, error) {
	assertion, err := validate()
	if err != nil {
		return nil, "", err
	}

	profile, err := s.aliases.Map(assertion)
	if err != nil {
		return nil, "", err
	}

	provisioned, err := s.provisioner.ResolveAccount(ctx, profile)
	if err != nil {
		return nil, profile.Email, err
	}

	token, err := s.issuer.IssueToken(provisioned.Account)
	if err != nil {
		return nil, profile.Email, err
	}

	return &LoginResult{
		Token:     token,
		Account:   provisioned.Account,
		IsNewUser: provisioned.IsNewUser,
	}, profile.Email, nil
}
