package federation

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

// AccountStore is the slice of the accounts repository SSO needs.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*auth.Account, error)
	Register(ctx context.Context, account *auth.Account) (*auth.Account, error)
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error
}

// ProvisionResult is the account an SSO login resolved to.
type ProvisionResult struct {
	Account   *auth.Account
	IsNewUser bool
}

// Provisioner links an asserted profile to a local account, creating one
// just in time for unknown emails.
type Provisioner struct {
	store        AccountStore
	activitySink auth.ActivitySink
	logger       auth.Logger
	now          func() time.Time
}

func NewProvisioner(store AccountStore) *Provisioner {
	return &Provisioner{
		store:  store,
		logger: auth.DefaultLogger(),
		now:    time.Now,
	}
}

func (p *Provisioner) WithLogger(logger auth.Logger) *Provisioner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Provisioner) WithActivitySink(sink auth.ActivitySink) *Provisioner {
	p.activitySink = sink
	return p
}

// ResolveAccount returns the live account for profile. Existing accounts
// that are not ACTIVE are refused with auth.ErrAccountNotActive.
func (p *Provisioner) ResolveAccount(ctx context.Context, profile *Profile) (*ProvisionResult, error) {
	if profile == nil || profile.Email == "" {
		return nil, ErrMissingEmailClaim
	}

	account, err := p.store.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return p.existing(ctx, account)
	case !repository.IsRecordNotFound(err):
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up SSO account")
	}

	account, err = p.create(ctx, profile)
	if err != nil {
		if isUserAlreadyExists(err) {
			// lost a race with a concurrent first login for the same email
			account, err = p.store.FindByEmail(ctx, profile.Email)
			if err != nil {
				return nil, errors.Wrap(err, errors.CategoryInternal, "failed to reload SSO account")
			}
			return p.existing(ctx, account)
		}
		return nil, err
	}

	p.track(ctx, account)
	return &ProvisionResult{Account: account, IsNewUser: true}, nil
}

func (p *Provisioner) existing(ctx context.Context, account *auth.Account) (*ProvisionResult, error) {
	account.EnsureStatus()
	if !account.IsActive() {
		p.logger.Info("sso login refused for %s account %s", account.Status, account.ID)
		return nil, auth.ErrAccountNotActive
	}

	p.track(ctx, account)
	return &ProvisionResult{Account: account}, nil
}

func (p *Provisioner) create(ctx context.Context, profile *Profile) (*auth.Account, error) {
	id, err := hashid.NewUUID(profile.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive account id")
	}

	firstName := profile.FirstName
	if firstName == "" {
		firstName = DefaultFirstName
	}

	created, err := p.store.Register(ctx, &auth.Account{
		ID:        id,
		Email:     profile.Email,
		FirstName: firstName,
		LastName:  profile.LastName,
		Role:      auth.RoleUser,
		Status:    auth.AccountStatusActive,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("sso provisioned account %s for %s", created.ID, created.Email)

	auth.EmitActivity(ctx, p.activitySink, p.logger, auth.ActivityEvent{
		EventType:  auth.ActivityEventSSOUserCreated,
		Actor:      auth.ActorRef{ID: created.ID.String(), Type: auth.ActorTypeAccount},
		EntityType: auth.EntityTypeUser,
		EntityID:   created.ID.String(),
		Metadata: map[string]any{
			"email":  created.Email,
			"method": "saml",
		},
	})

	return created, nil
}

func (p *Provisioner) track(ctx context.Context, account *auth.Account) {
	if err := p.store.TrackSuccessfulLogin(ctx, account.ID); err != nil {
		p.logger.Error("failed to track sso login for %s: %v", account.ID, err)
		return
	}
	now := p.now().UTC()
	account.LastLoginAt = &now
}

func isUserAlreadyExists(err error) bool {
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == auth.TextCodeUserAlreadyExists
}
