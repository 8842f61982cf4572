package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"braille-voice/internal/domain"
	"braille-voice/internal/password"
	"braille-voice/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// CredentialService owns user records and their password hashes.
// Users it returns never carry PasswordHash.
type CredentialService interface {
	Create(ctx context.Context, username, email, password string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	VerifyCredentials(ctx context.Context, username, password string) (*domain.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type credentialService struct {
	users  repository.UserRepository
	hasher password.Hasher
	clock  Clock

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialService(users repository.UserRepository, hasher password.Hasher, clock Clock) CredentialService {
	return &credentialService{
		users:  users,
		hasher: hasher,
		clock:  clock,
	}
}

// ValidateEmail reports whether email has the local@domain.tld shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func (s *credentialService) Create(ctx context.Context, username, email, plaintext string) (*domain.User, error) {
	// usernames are stored and matched verbatim; only blank ones are refused
	if strings.TrimSpace(username) == "" {
		return nil, validation("username is required")
	}
	if email == "" {
		return nil, validation("email is required")
	}
	if plaintext == "" {
		return nil, validation("password is required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) || errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, conflict(err)
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

func (s *credentialService) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *credentialService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

// VerifyCredentials returns repository.ErrUserNotFound or ErrWrongPassword on failure.
// Unknown usernames still pay for one hash verification.
func (s *credentialService) VerifyCredentials(ctx context.Context, username, plaintext string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Verify(plaintext, s.dummy())
		}
		return nil, err
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, ErrWrongPassword
	}
	return sanitizeUser(user), nil
}

func (s *credentialService) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return s.users.UpdateLastLogin(ctx, id, at)
}

func (s *credentialService) Delete(ctx context.Context, id string) error {
	return s.users.Delete(ctx, id)
}

func (s *credentialService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := user.Clone()
	clean.PasswordHash = ""
	return clean
}
