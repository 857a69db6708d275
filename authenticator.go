package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Small-Group-Org/prd-proto-hub"

// LoginResult is returned by a successful password login
type LoginResult struct {
	Token   string   `json:"token"`
	Account *Account `json:"user"`
}

type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
	activitySink ActivitySink
	tracer       trace.Tracer
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokens TokenService) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		tracer:       otel.Tracer(tracerName),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and mints a session token.
func (s *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer span.End()

	email = NormalizeEmail(email)

	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Info("login verify identity failed for %s: %v", email, err)
		span.SetStatus(codes.Error, "verify identity")
		EmitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType:  ActivityEventLoginFailed,
			Actor:      ActorRef{Type: ActorTypeAnonymous},
			EntityType: EntityTypeUser,
			Metadata: map[string]any{
				"email": email,
			},
		})
		return nil, err
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("login failed to generate token: %v", err)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("account.id", identity.ID()))

	EmitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:  ActivityEventLogin,
		Actor:      accountActor(identity.ID()),
		EntityType: EntityTypeUser,
		EntityID:   identity.ID(),
		Metadata: map[string]any{
			"email": identity.Email(),
		},
	})

	result := &LoginResult{Token: token}
	if ai, ok := identity.(accountIdentity); ok {
		result.Account = ai.Account()
	}
	return result, nil
}

// IssueToken mints a token for an already resolved account, used by SSO.
func (s *Auther) IssueToken(account *Account) (string, error) {
	return s.tokenService.Generate(AccountIdentity(account))
}
