package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

// TokenBytes is the entropy of a session token (256 bits).
const TokenBytes = 32

const maxIssueAttempts = 3

// SessionService issues and tracks opaque bearer tokens.
type SessionService interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (*domain.Session, error)
	// Lookup is a pure read and returns repository.ErrSessionNotFound for unknown tokens.
	Lookup(ctx context.Context, token string) (*domain.Session, error)
	// Revoke is idempotent.
	Revoke(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context) (int, error)
}

type sessionService struct {
	sessions repository.SessionRepository
	clock    Clock
}

func NewSessionService(sessions repository.SessionRepository, clock Clock) SessionService {
	return &sessionService{
		sessions: sessions,
		clock:    clock,
	}
}

// NewToken returns a URL-safe token carrying TokenBytes of crypto/rand entropy.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *sessionService) Issue(ctx context.Context, userID string, ttl time.Duration) (*domain.Session, error) {
	if userID == "" {
		return nil, validation("user id is required")
	}
	if ttl <= 0 {
		return nil, validation("session ttl must be positive")
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		session := &domain.Session{
			Token:     token,
			UserID:    userID,
			ExpiresAt: s.clock.now().Add(ttl).UTC(),
		}
		err = s.sessions.Create(ctx, session)
		if errors.Is(err, repository.ErrSessionExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("issue session: %w", repository.ErrSessionExists)
}

func (s *sessionService) Lookup(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, repository.ErrSessionNotFound
	}
	return s.sessions.Get(ctx, token)
}

func (s *sessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

func (s *sessionService) PurgeExpired(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpired(ctx, s.clock.now())
}
