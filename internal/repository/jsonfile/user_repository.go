package jsonfile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
)

type userRecord struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	CreatedAt    timestamp  `json:"created_at"`
	LastLogin    *timestamp `json:"last_login"`
}

func toUserRecord(u *domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    newTimestamp(u.CreatedAt),
		LastLogin:    optionalTimestamp(u.LastLogin),
	}
}

func (r userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time,
		LastLogin:    r.LastLogin.ptr(),
	}
}

// UserRepository keeps every user in memory and mirrors it to users.json.
type UserRepository struct {
	db *DB

	mu         sync.RWMutex
	order      []string
	users      map[string]*domain.User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewUserRepository(db *DB) repository.UserRepository {
	return &UserRepository{
		db:         db,
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// Init loads users.json into memory.
func (r *UserRepository) Init(ctx context.Context) error {
	var records []userRecord
	if _, err := r.db.read(UsersFile, &records); err != nil {
		return repository.Storage("load users", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.users = make(map[string]*domain.User, len(records))
	r.byUsername = make(map[string]string, len(records))
	r.byEmail = make(map[string]string, len(records))
	for _, rec := range records {
		if _, dup := r.users[rec.ID]; dup {
			return repository.Storage("load users", fmt.Errorf("duplicate user id %q", rec.ID))
		}
		r.insertLocked(rec.toDomain())
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return repository.ErrDuplicateUsername
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("user id %q already exists", user.ID)
	}

	records := r.recordsLocked(nil)
	records = append(records, toUserRecord(user))
	if err := r.db.write(UsersFile, records); err != nil {
		return repository.Storage("save users", err)
	}

	r.insertLocked(user.Clone())
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrUserNotFound
	}

	records := r.recordsLocked(func(u *domain.User) *domain.User {
		if u.ID != id {
			return u
		}
		next := u.Clone()
		next.LastLogin = &at
		return next
	})
	if err := r.db.write(UsersFile, records); err != nil {
		return repository.Storage("save users", err)
	}

	t := at
	r.users[id].LastLogin = &t
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil
	}

	records := make([]userRecord, 0, len(r.order))
	for _, existing := range r.order {
		if existing != id {
			records = append(records, toUserRecord(r.users[existing]))
		}
	}
	if err := r.db.write(UsersFile, records); err != nil {
		return repository.Storage("save users", err)
	}

	delete(r.users, id)
	delete(r.byUsername, user.Username)
	delete(r.byEmail, user.Email)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

func (r *UserRepository) insertLocked(user *domain.User) {
	r.order = append(r.order, user.ID)
	r.users[user.ID] = user
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
}

// recordsLocked snapshots the collection in insertion order, optionally
// replacing entries through edit.
func (r *UserRepository) recordsLocked(edit func(*domain.User) *domain.User) []userRecord {
	records := make([]userRecord, 0, len(r.order)+1)
	for _, id := range r.order {
		user := r.users[id]
		if edit != nil {
			user = edit(user)
		}
		records = append(records, toUserRecord(user))
	}
	return records
}

var _ repository.UserRepository = (*UserRepository)(nil)
