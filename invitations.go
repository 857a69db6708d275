package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InvitationIssuer is the public view of who sent an invitation.
type InvitationIssuer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// InvitationView is an invitation as listed to administrators. Status is
// the effective status at read time.
type InvitationView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Role        UserRole          `json:"role"`
	Status      InvitationStatus  `json:"status"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	InvitedByID string            `json:"invitedById"`
	InvitedBy   *InvitationIssuer `json:"invitedBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// NewInvitationView derives the listed view of an invitation.
func NewInvitationView(inv *Invitation, now time.Time) InvitationView {
	view := InvitationView{
		ID:          inv.ID.String(),
		Email:       inv.Email,
		Role:        inv.Role,
		Status:      inv.EffectiveStatus(now),
		ExpiresAt:   inv.ExpiresAt,
		InvitedByID: inv.InvitedByID.String(),
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
	if inv.InvitedBy != nil {
		view.InvitedBy = &InvitationIssuer{
			FirstName: inv.InvitedBy.FirstName,
			LastName:  inv.InvitedBy.LastName,
			Email:     inv.InvitedBy.Email,
		}
	}
	return view
}

// InvitationManager drives the invitation lifecycle: issue, list and accept.
type InvitationManager struct {
	repo   RepositoryManager
	issue  *IssueInvitationHandler
	accept *AcceptInvitationHandler
	logger Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewInvitationManager wires the issue and accept commands over repo.
func NewInvitationManager(repo RepositoryManager, cfg Config) *InvitationManager {
	return &InvitationManager{
		repo:   repo,
		issue:  NewIssueInvitationHandler(repo, cfg.GetAppBaseURL()).WithTTL(cfg.GetInvitationTTL()),
		accept: NewAcceptInvitationHandler(repo),
		logger: defLogger{},
		tracer: otel.Tracer(tracerName),
		now:    utcNow,
	}
}

func (m *InvitationManager) WithLogger(logger Logger) *InvitationManager {
	m.logger = normalizeLogger(logger)
	m.issue.WithLogger(m.logger)
	m.accept.WithLogger(m.logger)
	return m
}

func (m *InvitationManager) WithActivitySink(sink ActivitySink) *InvitationManager {
	m.issue.WithActivitySink(sink)
	m.accept.WithActivitySink(sink)
	return m
}

func (m *InvitationManager) WithNotifier(n InvitationNotifier) *InvitationManager {
	m.issue.WithNotifier(n)
	return m
}

// WithClock sets the time source for issue, accept and effective status.
func (m *InvitationManager) WithClock(now func() time.Time) *InvitationManager {
	if now == nil {
		return m
	}
	m.now = now
	m.issue.WithClock(now)
	m.accept.WithClock(now)
	return m
}

// Issue creates a pending invitation on behalf of issuer.
func (m *InvitationManager) Issue(ctx context.Context, issuer *Account, email, role string) (*IssuedInvitation, error) {
	ctx, span := m.tracer.Start(ctx, "auth.invitation.issue")
	defer span.End()

	if issuer == nil {
		return nil, ErrAuthenticationRequired
	}

	if !RoleAllowed(issuer.Role, InvitationManagers...) {
		return nil, ErrInsufficientPermissions
	}

	issued, err := m.issue.Execute(ctx, IssueInvitationMessage{
		Email:       email,
		Role:        role,
		InvitedByID: issuer.ID.String(),
	})
	if err != nil {
		span.SetStatus(codes.Error, "issue invitation")
		return nil, err
	}

	span.SetAttributes(attribute.String("invitation.id", issued.InvitationID))
	return issued, nil
}

// List returns every invitation newest first with its issuer.
func (m *InvitationManager) List(ctx context.Context) ([]InvitationView, error) {
	ctx, span := m.tracer.Start(ctx, "auth.invitation.list")
	defer span.End()

	records, err := m.repo.Invitations().ListWithIssuer(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list invitations")
	}

	now := m.now()
	views := make([]InvitationView, 0, len(records))
	for _, inv := range records {
		views = append(views, NewInvitationView(inv, now))
	}
	return views, nil
}

// Accept redeems an invitation and creates the account.
func (m *InvitationManager) Accept(ctx context.Context, msg AcceptInvitationMessage) (*Account, error) {
	ctx, span := m.tracer.Start(ctx, "auth.invitation.accept")
	defer span.End()

	account, err := m.accept.Execute(ctx, msg)
	if err != nil {
		span.SetStatus(codes.Error, "accept invitation")
		return nil, err
	}

	span.SetAttributes(attribute.String("account.id", account.ID.String()))
	return account, nil
}
