package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

// DefaultSessionTTL matches the lifetime of sessions issued by the previous service.
const DefaultSessionTTL = 7 * 24 * time.Hour

const TokenTypeBearer = "bearer"

// AuthResult is returned by a successful Register or Login.
type AuthResult struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
	User      *domain.User
}

// AuthService drives a caller through Unauthenticated -> Authenticated -> Expired|Revoked.
//
// Only storage failures (errors.Is(err, ErrStorage)) are fatal; every
// authentication problem surfaces as ErrInvalidCredentials or ErrUnauthenticated.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Validate(ctx context.Context, token string) (*domain.User, error)
	Revoke(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context) (int, error)
}

type AuthConfig struct {
	SessionTTL time.Duration
	Clock      Clock
	Logger     *logrus.Logger
}

type authService struct {
	cfg         AuthConfig
	credentials CredentialService
	sessions    SessionService
}

func NewAuthService(credentials CredentialService, sessions SessionService, cfg AuthConfig) AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &authService{
		cfg:         cfg,
		credentials: credentials,
		sessions:    sessions,
	}
}

func (s *authService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	user, err := s.credentials.Create(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	logger := s.cfg.Logger.WithField("user_id", user.ID)

	session, err := s.sessions.Issue(ctx, user.ID, s.cfg.SessionTTL)
	if err != nil {
		// registration implies login: undo the user so the call fails as a whole
		if delErr := s.credentials.Delete(ctx, user.ID); delErr != nil {
			logger.Errorf("roll back registration: %v", delErr)
		}
		return nil, err
	}

	logger.Info("user registered")
	return newAuthResult(session, user), nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.credentials.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, ErrWrongPassword) {
			s.cfg.Logger.Debug("login rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	logger := s.cfg.Logger.WithField("user_id", user.ID)

	session, err := s.sessions.Issue(ctx, user.ID, s.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Clock.now().UTC()
	if err := s.credentials.RecordLogin(ctx, user.ID, now); err != nil {
		// the login failed as a whole: take the fresh session back
		if revokeErr := s.sessions.Revoke(ctx, session.Token); revokeErr != nil {
			logger.Errorf("revoke session of failed login: %v", revokeErr)
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	user.LastLogin = &now

	logger.Info("user logged in")
	return newAuthResult(session, user), nil
}

func (s *authService) Validate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if session.ExpiredAt(s.cfg.Clock.now()) {
		if err := s.sessions.Revoke(ctx, token); err != nil {
			return nil, err
		}
		s.cfg.Logger.WithField("user_id", session.UserID).Debug("session expired")
		return nil, ErrUnauthenticated
	}

	user, err := s.credentials.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// the user is gone; drop the orphaned session as well
			if err := s.sessions.Revoke(ctx, token); err != nil {
				return nil, err
			}
			s.cfg.Logger.WithField("user_id", session.UserID).Warn("session referenced a missing user")
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) Revoke(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func (s *authService) PurgeExpired(ctx context.Context) (int, error) {
	return s.sessions.PurgeExpired(ctx)
}

func newAuthResult(session *domain.Session, user *domain.User) *AuthResult {
	return &AuthResult{
		Token:     session.Token,
		TokenType: TokenTypeBearer,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}
}
