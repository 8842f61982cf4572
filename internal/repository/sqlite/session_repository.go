package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

// expires_at holds unix nanoseconds so range deletes compare numerically.
const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

type SessionRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSessionsTable); err != nil {
		return repository.Storage("create sessions table", err)
	}
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (token, user_id, expires_at)
VALUES (?, ?, ?)`,
		session.Token,
		session.UserID,
		session.ExpiresAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return repository.ErrSessionExists
		}
		return repository.Storage("insert session", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		session domain.Session
		expires int64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT token, user_id, expires_at
FROM sessions
WHERE token = ?`,
		token,
	).Scan(&session.Token, &session.UserID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, repository.Storage("scan session", err)
	}
	session.ExpiresAt = time.Unix(0, expires).UTC()
	return &session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token); err != nil {
		return repository.Storage("delete session", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, repository.Storage("delete expired sessions", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, repository.Storage("expired sessions rows affected", err)
	}
	return int(aff), nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
