package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Invitations interface {
	repository.Repository[*Invitation]

	IssueTx(ctx context.Context, tx bun.IDB, invitation *Invitation) (*Invitation, error)
	FindPendingByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Invitation, error)
	FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error)
	ListWithIssuer(ctx context.Context) ([]*Invitation, error)

	// ReissueExpiredTx refreshes a pending invitation that is past its
	// expiry with a new token, role, issuer and expiry.
	ReissueExpiredTx(ctx context.Context, tx bun.IDB, invitation *Invitation, now time.Time) (*Invitation, error)

	// MarkAcceptedTx atomically moves a pending, unexpired invitation to
	// ACCEPTED and returns it. Any other state yields ErrInvalidInvitation.
	MarkAcceptedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error)
}

type invitations struct {
	repository.Repository[*Invitation]
	db  bun.IDB
	now func() time.Time
}

var _ Invitations = (*invitations)(nil)

func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(i *Invitation) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Invitation, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &invitations{
		Repository: repo,
		db:         db,
		now:        utcNow,
	}
}

// IssueTx persists a PENDING invitation. The partial unique index on pending
// emails turns a lost race into ErrInvitationAlreadySent.
func (r *invitations) IssueTx(ctx context.Context, tx bun.IDB, invitation *Invitation) (*Invitation, error) {
	now := r.now()
	invitation.Email = NormalizeEmail(invitation.Email)
	if invitation.ID == uuid.Nil {
		invitation.ID = uuid.New()
	}
	if invitation.Status == "" {
		invitation.Status = InvitationStatusPending
	}
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = now
	}
	invitation.UpdatedAt = now

	created, err := r.Repository.CreateTx(ctx, tx, invitation)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrInvitationAlreadySent
		}
		return nil, err
	}
	return created, nil
}

func (r *invitations) FindPendingByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Invitation, error) {
	record := &Invitation{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.status = ?", InvitationStatusPending).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (r *invitations) FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error) {
	return r.Repository.GetByIdentifierTx(ctx, tx, token)
}

// ListWithIssuer returns every invitation newest first with its issuer loaded.
func (r *invitations) ListWithIssuer(ctx context.Context) ([]*Invitation, error) {
	records := []*Invitation{}
	err := r.db.NewSelect().
		Model(&records).
		Relation("InvitedBy").
		OrderExpr("?TableAlias.created_at DESC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

func (r *invitations) ReissueExpiredTx(ctx context.Context, tx bun.IDB, invitation *Invitation, now time.Time) (*Invitation, error) {
	res, err := tx.NewUpdate().
		Model((*Invitation)(nil)).
		Set("token = ?", invitation.Token).
		Set("role = ?", invitation.Role).
		Set("invited_by_id = ?", invitation.InvitedByID).
		Set("expires_at = ?", invitation.ExpiresAt).
		Set("created_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", invitation.ID).
		Where("status = ?", InvitationStatusPending).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err := expectAffected(res, err); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvitationAlreadySent
		}
		return nil, err
	}

	invitation.Status = InvitationStatusPending
	invitation.CreatedAt = now
	invitation.UpdatedAt = now
	return invitation, nil
}

func (r *invitations) MarkAcceptedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error) {
	if token == "" {
		return nil, ErrInvalidInvitation
	}

	res, err := tx.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", InvitationStatusAccepted).
		Set("updated_at = ?", now).
		Where("token = ?", token).
		Where("status = ?", InvitationStatusPending).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err := expectAffected(res, err); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidInvitation
		}
		return nil, err
	}

	return r.FindByTokenTx(ctx, tx, token)
}
