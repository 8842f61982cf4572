package repository

import (
	"context"
	"time"

	"braille-voice/internal/domain"
)

// SessionRepository persists sessions keyed by token.
type SessionRepository interface {
	Init(ctx context.Context) error
	// Create returns ErrSessionExists if the token is already taken.
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes every session with ExpiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
