package repository

import (
	"context"
	"time"

	"braille-voice/internal/domain"
)

// UserRepository defines persistence operations for User entities.
//
// Create must check uniqueness against the full user set and insert in one
// serialized step, reporting ErrDuplicateUsername before ErrDuplicateEmail.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
