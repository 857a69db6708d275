package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultInvitationTTL is how long an invitation can be redeemed.
const DefaultInvitationTTL = 24 * time.Hour

// invitationTokenBytes is the entropy of a redemption token before hex encoding.
const invitationTokenBytes = 32

type IssueInvitationMessage struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	InvitedByID string `json:"-"`
}

func (e IssueInvitationMessage) Type() string { return "invitation.issue" }

func (e IssueInvitationMessage) Validate() error {
	return validationError(validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Role, validation.Required, validation.By(validRole)),
		validation.Field(&e.InvitedByID, validation.Required, is.UUID),
	))
}

// IssuedInvitation is returned to the issuer
type IssuedInvitation struct {
	InvitationID  string      `json:"invitationId"`
	RedemptionURL string      `json:"inviteUrl"`
	ExpiresAt     time.Time   `json:"expiresAt"`
	Invitation    *Invitation `json:"-"`
}

type IssueInvitationHandler struct {
	repo         RepositoryManager
	notifier     InvitationNotifier
	activitySink ActivitySink
	logger       Logger
	appBaseURL   string
	ttl          time.Duration
	now          func() time.Time
	tokenFn      func() (string, error)
}

func NewIssueInvitationHandler(repo RepositoryManager, appBaseURL string) *IssueInvitationHandler {
	return &IssueInvitationHandler{
		repo:         repo,
		notifier:     noopNotifier{},
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		appBaseURL:   appBaseURL,
		ttl:          DefaultInvitationTTL,
		now:          utcNow,
		tokenFn:      GenerateInvitationToken,
	}
}

func (h *IssueInvitationHandler) WithNotifier(n InvitationNotifier) *IssueInvitationHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

func (h *IssueInvitationHandler) WithActivitySink(sink ActivitySink) *IssueInvitationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *IssueInvitationHandler) WithLogger(logger Logger) *IssueInvitationHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *IssueInvitationHandler) WithTTL(ttl time.Duration) *IssueInvitationHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

func (h *IssueInvitationHandler) WithClock(now func() time.Time) *IssueInvitationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *IssueInvitationHandler) Execute(ctx context.Context, event IssueInvitationMessage) (*IssuedInvitation, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation issue",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueInvitationHandler) execute(ctx context.Context, event IssueInvitationMessage) (*IssuedInvitation, error) {
	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return nil, err
	}

	role, _ := ParseRole(event.Role)
	inviter := uuid.MustParse(event.InvitedByID)

	token, err := h.tokenFn()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate invitation token")
	}

	now := h.now()
	invitation := &Invitation{
		Email:       event.Email,
		Role:        role,
		Token:       token,
		Status:      InvitationStatusPending,
		ExpiresAt:   now.Add(h.ttl),
		InvitedByID: inviter,
		CreatedAt:   now,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Accounts().ExistsByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserAlreadyExists
		}

		pending, err := h.repo.Invitations().FindPendingByEmailTx(ctx, tx, event.Email)
		switch {
		case err == nil && pending.IsRedeemable(now):
			return ErrInvitationAlreadySent
		case err == nil:
			invitation.ID = pending.ID
			_, err = h.repo.Invitations().ReissueExpiredTx(ctx, tx, invitation, now)
			return err
		case !repository.IsRecordNotFound(err):
			return err
		}

		_, err = h.repo.Invitations().IssueTx(ctx, tx, invitation)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		if isUniqueViolation(err) {
			return nil, ErrInvitationAlreadySent
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invitation issue transaction failed")
	}

	issued := &IssuedInvitation{
		InvitationID:  invitation.ID.String(),
		RedemptionURL: RedemptionURL(h.appBaseURL, invitation.Token),
		ExpiresAt:     invitation.ExpiresAt,
		Invitation:    invitation,
	}

	EmitActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType:  ActivityEventInvitationSent,
		Actor:      accountActor(event.InvitedByID),
		EntityType: EntityTypeInvitation,
		EntityID:   issued.InvitationID,
		Metadata: map[string]any{
			"email":     invitation.Email,
			"role":      string(invitation.Role),
			"expiresAt": invitation.ExpiresAt.Format(time.RFC3339),
		},
	})

	if err := h.notifier.NotifyInvitation(ctx, InvitationNotice{
		Email:         invitation.Email,
		Role:          invitation.Role,
		RedemptionURL: issued.RedemptionURL,
		ExpiresAt:     invitation.ExpiresAt,
	}); err != nil {
		h.logger.Warn("invitation notifier failed for %s: %v", invitation.Email, err)
	}

	return issued, nil
}

// GenerateInvitationToken returns 32 random bytes, hex encoded.
func GenerateInvitationToken() (string, error) {
	buf := make([]byte, invitationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RedemptionURL builds the link an invitee follows to accept.
func RedemptionURL(appBaseURL, token string) string {
	return joinURL(appBaseURL, "/accept-invitation") + "?token=" + token
}
