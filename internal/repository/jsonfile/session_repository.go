package jsonfile

import (
	"context"
	"sync"
	"time"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt timestamp `json:"expires_at"`
}

// SessionRepository keeps sessions in memory and mirrors them to sessions.json.
type SessionRepository struct {
	db *DB

	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionRepository(db *DB) repository.SessionRepository {
	return &SessionRepository{
		db:       db,
		sessions: make(map[string]domain.Session),
	}
}

// Init loads sessions.json into memory.
func (r *SessionRepository) Init(ctx context.Context) error {
	records := map[string]sessionRecord{}
	if _, err := r.db.read(SessionsFile, &records); err != nil {
		return repository.Storage("load sessions", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[string]domain.Session, len(records))
	for token, rec := range records {
		r.sessions[token] = domain.Session{
			Token:     token,
			UserID:    rec.UserID,
			ExpiresAt: rec.ExpiresAt.Time,
		}
	}
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Token]; exists {
		return repository.ErrSessionExists
	}

	records := r.recordsLocked("")
	records[session.Token] = sessionRecord{
		UserID:    session.UserID,
		ExpiresAt: newTimestamp(session.ExpiresAt),
	}
	if err := r.db.write(SessionsFile, records); err != nil {
		return repository.Storage("save sessions", err)
	}

	r.sessions[session.Token] = *session
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[token]; !ok {
		return nil
	}
	if err := r.db.write(SessionsFile, r.recordsLocked(token)); err != nil {
		return repository.Storage("save sessions", err)
	}

	delete(r.sessions, token)
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make(map[string]sessionRecord, len(r.sessions))
	var expired []string
	for token, session := range r.sessions {
		if session.ExpiredAt(now) {
			expired = append(expired, token)
			continue
		}
		records[token] = sessionRecord{UserID: session.UserID, ExpiresAt: newTimestamp(session.ExpiresAt)}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := r.db.write(SessionsFile, records); err != nil {
		return 0, repository.Storage("save sessions", err)
	}

	for _, token := range expired {
		delete(r.sessions, token)
	}
	return len(expired), nil
}

// recordsLocked snapshots every session except skip.
func (r *SessionRepository) recordsLocked(skip string) map[string]sessionRecord {
	records := make(map[string]sessionRecord, len(r.sessions)+1)
	for token, session := range r.sessions {
		if token == skip {
			continue
		}
		records[token] = sessionRecord{UserID: session.UserID, ExpiresAt: newTimestamp(session.ExpiresAt)}
	}
	return records
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
