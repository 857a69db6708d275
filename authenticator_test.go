package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

func newTestAuther(t *testing.T, sink auth.ActivitySink) (*auth.Auther, auth.RepositoryManager) {
	t.Helper()

	repo := newTestRepo(t)
	provider := auth.NewAccountProvider(repo.Accounts()).
		WithLogger(nopLogger{}).
		WithLoginTracker(auth.NewLoginTracker(repo.Accounts()))

	auther := auth.NewAuthenticator(provider, newTestTokens()).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)
	return auther, repo
}

func TestLogin(t *testing.T) {
	sink := &recordingSink{}
	auther, repo := newTestAuther(t, sink)
	alice := seedAccount(t, repo, "alice@example.com", "password123", auth.RoleUser, auth.AccountStatusActive)

	result, err := auther.Login(context.Background(), "ALICE@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.Equal(t, alice.ID, result.Account.ID)
	assert.NotEmpty(t, result.Token)

	claims, err := auther.TokenService().Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID.String(), claims.UserID())
	assert.Equal(t, "USER", claims.Role())

	require.Equal(t, []auth.ActivityEventType{auth.ActivityEventLogin}, sink.Types())
	event := sink.Last()
	assert.Equal(t, auth.ActorRef{ID: alice.ID.String(), Type: auth.ActorTypeAccount}, event.Actor)
	assert.Equal(t, auth.EntityTypeUser, event.EntityType)
	assert.Equal(t, alice.ID.String(), event.EntityID)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestLogin_FailureEmitsEvent(t *testing.T) {
	sink := &recordingSink{}
	auther, repo := newTestAuther(t, sink)
	seedAccount(t, repo, "alice@example.com", "password123", auth.RoleUser, auth.AccountStatusActive)

	result, err := auther.Login(context.Background(), "alice@example.com", "nope-nope")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginFailed}, sink.Types())
	event := sink.Last()
	assert.Equal(t, auth.ActorTypeAnonymous, event.Actor.Type)
	assert.Equal(t, "alice@example.com", event.Metadata["email"])
}

func TestLogin_SinkErrorIsSwallowed(t *testing.T) {
	sink := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("audit store down")
	})
	auther, repo := newTestAuther(t, sink)
	seedAccount(t, repo, "alice@example.com", "password123", auth.RoleUser, auth.AccountStatusActive)

	result, err := auther.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestAuther_IssueToken(t *testing.T) {
	auther, repo := newTestAuther(t, nil)
	account := seedAccount(t, repo, "sso@example.com", "", auth.RoleUser, auth.AccountStatusActive)

	token, err := auther.IssueToken(account)
	require.NoError(t, err)

	claims, err := auther.TokenService().Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "sso@example.com", claims.Email())
}

func TestMultiActivitySink(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	boom := errors.New("boom")

	sink := auth.MultiActivitySink{
		first,
		nil,
		auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return boom }),
		second,
	}

	err := sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLogin})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Types(), 1)
	assert.Len(t, second.Types(), 1)
}
