package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateProfileMessage changes the caller's own names. Absent fields are left untouched.
type UpdateProfileMessage struct {
	AccountID string  `json:"-"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (e UpdateProfileMessage) Type() string { return "account.profile.update" }

func (e UpdateProfileMessage) Validate() error {
	return validationError(validation.ValidateStruct(&e,
		validation.Field(&e.AccountID, validation.Required),
		validation.Field(&e.FirstName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&e.LastName, validation.NilOrNotEmpty, validation.Length(1, 100)),
	))
}

func (e UpdateProfileMessage) updatedFields() []string {
	fields := []string{}
	if e.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if e.LastName != nil {
		fields = append(fields, "lastName")
	}
	return fields
}

type UpdateProfileHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
}

func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *UpdateProfileHandler) WithActivitySink(sink ActivitySink) *UpdateProfileHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) (*Account, error) {
	event.FirstName = trimPtr(event.FirstName)
	event.LastName = trimPtr(event.LastName)

	if err := event.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(event.AccountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var account *Account
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var first, last string
		if event.FirstName != nil {
			first = *event.FirstName
		}
		if event.LastName != nil {
			last = *event.LastName
		}

		updated, err := h.repo.Accounts().UpdateProfileTx(ctx, tx, id, first, last)
		if err != nil {
			return err
		}
		account = updated
		return nil
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile update failed")
	}

	EmitActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType:  ActivityEventProfileUpdate,
		Actor:      accountActor(account.ID.String()),
		EntityType: EntityTypeUser,
		EntityID:   account.ID.String(),
		Metadata: map[string]any{
			"updatedFields": event.updatedFields(),
		},
	})

	return account, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
