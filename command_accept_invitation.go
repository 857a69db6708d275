package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type AcceptInvitationMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

func (e AcceptInvitationMessage) Type() string { return "invitation.accept" }

func (e AcceptInvitationMessage) Validate() error {
	return validationError(validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.Password, passwordRules()...),
		validation.Field(&e.ConfirmPassword, validation.By(func(value any) error {
			confirm, _ := value.(string)
			if confirm != "" && confirm != e.Password {
				return errors.New("passwords do not match")
			}
			return nil
		})),
		validation.Field(&e.FirstName, validation.Required),
		validation.Field(&e.LastName, validation.Required),
	))
}

type AcceptInvitationHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

func NewAcceptInvitationHandler(repo RepositoryManager) *AcceptInvitationHandler {
	return &AcceptInvitationHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          utcNow,
	}
}

func (h *AcceptInvitationHandler) WithActivitySink(sink ActivitySink) *AcceptInvitationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *AcceptInvitationHandler) WithLogger(logger Logger) *AcceptInvitationHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *AcceptInvitationHandler) WithClock(now func() time.Time) *AcceptInvitationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *AcceptInvitationHandler) Execute(ctx context.Context, event AcceptInvitationMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation accept",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInvitationHandler) execute(ctx context.Context, event AcceptInvitationMessage) (*Account, error) {
	event.Token = strings.TrimSpace(event.Token)
	event.FirstName = strings.TrimSpace(event.FirstName)
	event.LastName = strings.TrimSpace(event.LastName)

	if err := event.Validate(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account := &Account{}
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		invitation, err := h.repo.Invitations().MarkAcceptedTx(ctx, tx, event.Token, h.now())
		if err != nil {
			return err
		}

		inviter := invitation.InvitedByID
		account.Email = invitation.Email
		account.Role = invitation.Role
		account.PasswordHash = hash
		account.FirstName = event.FirstName
		account.LastName = event.LastName
		account.Status = AccountStatusActive
		account.InvitedByID = &inviter

		created, err := h.repo.Accounts().RegisterTx(ctx, tx, account)
		if err != nil {
			return err
		}
		account = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invitation accept transaction failed")
	}

	EmitActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType:  ActivityEventInvitationAccepted,
		Actor:      accountActor(account.ID.String()),
		EntityType: EntityTypeUser,
		EntityID:   account.ID.String(),
		Metadata: map[string]any{
			"email": account.Email,
			"role":  string(account.Role),
		},
	})

	return account, nil
}
