package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
	"github.com/promptlift/go-auth/storage"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

// testConfig implements auth.Config
type testConfig struct {
	accessTTL        time.Duration
	refreshTTL       time.Duration
	rotateRefresh    bool
	deterministicIDs bool
	environment      string
	audience         []string
}

func newTestConfig() *testConfig {
	return &testConfig{
		accessTTL:   15 * time.Minute,
		refreshTTL:  168 * time.Hour,
		environment: "test",
	}
}

func (c *testConfig) GetAccessSecret() string            { return testAccessSecret }
func (c *testConfig) GetRefreshSecret() string           { return testRefreshSecret }
func (c *testConfig) GetIssuer() string                  { return "test-issuer" }
func (c *testConfig) GetAudience() []string              { return c.audience }
func (c *testConfig) GetAccessTokenTTL() time.Duration   { return c.accessTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration  { return c.refreshTTL }
func (c *testConfig) GetEmailVerifyTTL() time.Duration   { return 24 * time.Hour }
func (c *testConfig) GetPasswordResetTTL() time.Duration { return time.Hour }
func (c *testConfig) GetBcryptCost() int                 { return 4 }
func (c *testConfig) GetTOTPIssuer() string              { return "PromptLift" }
func (c *testConfig) GetStoreTimeout() time.Duration     { return 5 * time.Second }
func (c *testConfig) GetRotateRefresh() bool             { return c.rotateRefresh }
func (c *testConfig) GetDeterministicIDs() bool          { return c.deterministicIDs }
func (c *testConfig) GetEnvironment() string             { return c.environment }
func (c *testConfig) GetCookieDomain() string            { return "" }
func (c *testConfig) GetCookieSecure() bool              { return true }
func (c *testConfig) GetCookieSameSite() string          { return "Lax" }

// newTestRepo returns a repository manager over a fresh in-memory SQLite
// database with all migrations applied.
func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	db, err := storage.OpenAndMigrate(context.Background(), storage.DialectSQLite, storage.InMemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return auth.NewRepositoryManager(db)
}

// createUser stores a user with the given password hashed at the minimum cost
func createUser(t *testing.T, repo auth.RepositoryManager, email, password string) *auth.User {
	t.Helper()

	hash, err := auth.NewBcryptHasher(4).Hash(password)
	require.NoError(t, err)

	user, err := repo.Users().Create(context.Background(), &auth.User{
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}

// MockUserFinder implements auth.UserFinder
type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	args := m.Called(ctx, to, token)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	args := m.Called(ctx, to, token)
	return args.Error(0)
}

// MockDenylist implements auth.TokenDenylist
type MockDenylist struct {
	mock.Mock
}

func (m *MockDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	args := m.Called(ctx, jti, until)
	return args.Error(0)
}

func (m *MockDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

// captureMailer records tokens instead of sending them
type captureMailer struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		verify: map[string]string{},
		reset:  map[string]string{},
	}
}

func (c *captureMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verify[to] = token
	return nil
}

func (c *captureMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset[to] = token
	return nil
}

func (c *captureMailer) verifyToken(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verify[to]
}

func (c *captureMailer) resetToken(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reset[to]
}

// captureSink records activity events
type captureSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// testLogger collects formatted log lines
type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *testLogger) Debug(format string, args ...any) { l.log("DBG", format, args...) }
func (l *testLogger) Info(format string, args ...any)  { l.log("INF", format, args...) }
func (l *testLogger) Warn(format string, args ...any)  { l.log("WRN", format, args...) }
func (l *testLogger) Error(format string, args ...any) { l.log("ERR", format, args...) }

func (l *testLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
