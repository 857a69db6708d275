package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AccountStore is the persistence the provider needs
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

// LoginTracker records successful logins
type LoginTracker interface {
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

// AccountProvider verifies credentials and resolves live accounts
type AccountProvider struct {
	store   AccountStore
	tracker LoginTracker
	logger  Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountStore) *AccountProvider {
	return &AccountProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	p.logger = normalizeLogger(l)
	return p
}

// WithLoginTracker sets where successful logins are recorded.
func (p *AccountProvider) WithLoginTracker(t LoginTracker) *AccountProvider {
	p.tracker = t
	return p
}

// VerifyIdentity checks an email and password pair. Unknown email, inactive
// account, SSO-only account and wrong password are indistinguishable.
func (p *AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := p.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			burnPasswordCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if account == nil || !account.HasPassword() {
		burnPasswordCompare(password)
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	// status is checked after the hash so timing does not reveal it
	account.EnsureStatus()
	if !account.IsActive() {
		p.logger.Info("login rejected for non active account %s (%s)", account.ID, account.Status)
		return nil, ErrInvalidCredentials
	}

	if p.tracker != nil {
		if err := p.tracker.TrackSuccessfulLogin(ctx, account); err != nil {
			p.logger.Error("failed to track successful login: %v", err)
		}
	}

	return AccountIdentity(account), nil
}

// FindActiveAccount loads the account by id and requires it to be ACTIVE.
// Every failure is reported as ErrAuthenticationRequired.
func (p *AccountProvider) FindActiveAccount(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrAuthenticationRequired
	}

	account, err := p.store.FindByID(ctx, id)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			p.logger.Error("liveness lookup failed for %s: %v", id, err)
		}
		return nil, ErrAuthenticationRequired
	}

	account.EnsureStatus()
	if !account.IsActive() {
		return nil, ErrAuthenticationRequired
	}

	return account, nil
}

var _ IdentityProvider = (*AccountProvider)(nil)

// accountLoginTracker adapts the Accounts repository to LoginTracker
type accountLoginTracker struct {
	accounts Accounts
}

// NewLoginTracker records last login timestamps through the repository.
func NewLoginTracker(accounts Accounts) LoginTracker {
	return accountLoginTracker{accounts: accounts}
}

func (t accountLoginTracker) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	if account == nil {
		return nil
	}
	return t.accounts.TrackSuccessfulLogin(ctx, account.ID)
}
