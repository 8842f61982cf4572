package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"braille-voice/internal/domain"
	"braille-voice/internal/password"
	"braille-voice/internal/repository"
	"braille-voice/internal/repository/jsonfile"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakySessions fails selected operations with a storage error.
type flakySessions struct {
	repository.SessionRepository
	failCreate bool
	failGet    bool
	failDelete bool
}

var errDiskGone = errors.New("disk unavailable")

func (f *flakySessions) Create(ctx context.Context, s *domain.Session) error {
	if f.failCreate {
		return repository.Storage("save sessions", errDiskGone)
	}
	return f.SessionRepository.Create(ctx, s)
}

func (f *flakySessions) Get(ctx context.Context, token string) (*domain.Session, error) {
	if f.failGet {
		return nil, repository.Storage("load session", errDiskGone)
	}
	return f.SessionRepository.Get(ctx, token)
}

func (f *flakySessions) Delete(ctx context.Context, token string) error {
	if f.failDelete {
		return repository.Storage("save sessions", errDiskGone)
	}
	return f.SessionRepository.Delete(ctx, token)
}

// flakyUsers fails UpdateLastLogin with a storage error.
type flakyUsers struct {
	repository.UserRepository
	failUpdate bool
}

func (f *flakyUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if f.failUpdate {
		return repository.Storage("save users", errDiskGone)
	}
	return f.UserRepository.UpdateLastLogin(ctx, id, at)
}

type fixture struct {
	clock       *fakeClock
	users       *flakyUsers
	sessions    *flakySessions
	credentials CredentialService
	sessionSvc  SessionService
	auth        AuthService
}

const testTTL = time.Hour

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := jsonfile.Open(t.TempDir())
	require.NoError(t, err)
	users := &flakyUsers{UserRepository: jsonfile.NewUserRepository(db)}
	require.NoError(t, users.Init(ctx))
	sessions := &flakySessions{SessionRepository: jsonfile.NewSessionRepository(db)}
	require.NoError(t, sessions.Init(ctx))

	hasher, err := password.NewPBKDF2(password.DefaultIterations)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := newFakeClock()
	credentials := NewCredentialService(users, hasher, clock.Now)
	sessionSvc := NewSessionService(sessions, clock.Now)
	auth := NewAuthService(credentials, sessionSvc, AuthConfig{
		SessionTTL: testTTL,
		Clock:      clock.Now,
		Logger:     logger,
	})

	return &fixture{
		clock:       clock,
		users:       users,
		sessions:    sessions,
		credentials: credentials,
		sessionSvc:  sessionSvc,
		auth:        auth,
	}
}

func userCount(t *testing.T, f *fixture) int {
	t.Helper()
	n, err := f.users.Count(context.Background())
	require.NoError(t, err)
	return n
}
