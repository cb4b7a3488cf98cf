// Package memory is an in-process UserStore with the same uniqueness and
// timestamp guarantees as the Postgres store. It backs STORAGE_DRIVER=memory
// and the handler and access-layer tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/models"
	"github.com/hongminglow/userhub/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

// Store is an in-process storage.UserStore guarded by a single mutex.
type Store struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a new record, failing with a conflict when the email is taken.
func (s *Store) Insert(_ context.Context, rec models.NewUserRecord) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[rec.Email]; taken {
		return models.User{}, storage.NewError(storage.KindConflict, "insert user", nil)
	}
	now := s.now()
	u := models.User{
		ID:           uuid.New(),
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Name:         rec.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

// FindByID returns the record with id or a not-found error.
func (s *Store) FindByID(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return models.User{}, storage.NewError(storage.KindNotFound, "find user by id", nil)
	}
	return u, nil
}

// FindByEmail returns the record with an exactly matching email or a not-found error.
func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return models.User{}, storage.NewError(storage.KindNotFound, "find user by email", nil)
	}
	return s.byID[id], nil
}

// List returns every record ordered by creation time.
func (s *Store) List(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateProfile replaces email and name and bumps updated_at.
func (s *Store) UpdateProfile(_ context.Context, id uuid.UUID, email, name string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return models.User{}, storage.NewError(storage.KindNotFound, "update user", nil)
	}
	if owner, taken := s.byEmail[email]; taken && owner != id {
		return models.User{}, storage.NewError(storage.KindConflict, "update user", nil)
	}
	delete(s.byEmail, u.Email)
	u.Email = email
	u.Name = name
	u.UpdatedAt = s.bump(u.UpdatedAt)
	s.byID[id] = u
	s.byEmail[email] = id
	return u, nil
}

// UpdatePasswordHash replaces the stored hash and bumps updated_at.
func (s *Store) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return models.User{}, storage.NewError(storage.KindNotFound, "update password", nil)
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.bump(u.UpdatedAt)
	s.byID[id] = u
	return u, nil
}

// Delete removes the record and reports how many rows went away (0 or 1).
func (s *Store) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return 0, nil
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	return 1, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// bump returns a write timestamp strictly after prev.
func (s *Store) bump(prev time.Time) time.Time {
	now := s.now()
	if next := prev.Add(time.Microsecond); now.Before(next) {
		return next
	}
	return now
}
