package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_login DATETIME NULL
);
`

type UserRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return repository.Storage("create users table", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Storage("begin tx", err)
	}
	defer tx.Rollback() // safe no-op on commit

	taken, err := exists(ctx, tx, `SELECT 1 FROM users WHERE username = ?`, user.Username)
	if err != nil {
		return repository.Storage("check username", err)
	}
	if taken {
		return repository.ErrDuplicateUsername
	}
	taken, err = exists(ctx, tx, `SELECT 1 FROM users WHERE email = ?`, user.Email)
	if err != nil {
		return repository.Storage("check email", err)
	}
	if taken {
		return repository.ErrDuplicateEmail
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at, last_login)
VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CreatedAt.UTC(),
		nullTime(user.LastLogin),
	); err != nil {
		return repository.Storage("insert user", err)
	}

	if err := tx.Commit(); err != nil {
		return repository.Storage("commit user", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at, last_login
FROM users
WHERE username = ?`,
		username,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at, last_login
FROM users
WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login=? WHERE id=?`, at.UTC(), id)
	if err != nil {
		return repository.Storage("update last login", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return repository.Storage("last login rows affected", err)
	}
	if aff == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id); err != nil {
		return repository.Storage("delete user", err)
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, repository.Storage("count users", err)
	}
	return n, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, arg any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user      domain.User
		createdAt time.Time
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, repository.Storage("scan user", err)
	}
	user.CreatedAt = createdAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLogin = &t
	}
	return &user, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ repository.UserRepository = (*UserRepository)(nil)
