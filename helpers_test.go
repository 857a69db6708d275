package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

const testSigningKey = "test-signing-key-with-enough-entropy"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := auth.OpenDB(auth.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db, nopLogger{}))
	return db
}

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()
	return auth.NewRepositoryManager(newTestDB(t))
}

func seedAccount(t *testing.T, repo auth.RepositoryManager, email, password string, role auth.UserRole, status auth.AccountStatus) *auth.Account {
	t.Helper()

	hash := ""
	if password != "" {
		var err error
		hash, err = auth.HashPassword(password)
		require.NoError(t, err)
	}

	account, err := repo.Accounts().Register(context.Background(), &auth.Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     strings.Split(email, "@")[0],
		Role:         role,
		Status:       status,
	})
	require.NoError(t, err)
	return account
}

func newTestServer() router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{ErrorHandler: auth.FiberErrorHandler(nopLogger{})})
	})
}

type testConfig struct {
	appBaseURL    string
	invitationTTL time.Duration
}

func (c testConfig) GetSigningKey() string { return testSigningKey }

func (c testConfig) GetTokenTTL() time.Duration { return auth.DefaultTokenTTL }

func (c testConfig) GetIssuer() string { return "" }

func (c testConfig) GetAudience() []string { return nil }

func (c testConfig) GetAppBaseURL() string { return c.appBaseURL }

func (c testConfig) GetInvitationTTL() time.Duration { return c.invitationTTL }

func newTestTokens() *auth.TokenServiceImpl {
	return auth.NewTokenService([]byte(testSigningKey), 0, "", nil, nopLogger{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeClock is a settable time source safe for concurrent readers.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) Last() auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return auth.ActivityEvent{}
	}
	return s.events[len(s.events)-1]
}

// MockAccountStore implements auth.AccountStore
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockAccountStore) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

// MockStatusStore implements auth.StatusStore
type MockStatusStore struct {
	MockAccountStore
}

func (m *MockStatusStore) UpdateStatus(ctx context.Context, id uuid.UUID, status auth.AccountStatus) (*auth.Account, error) {
	args := m.Called(ctx, id, status)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}
