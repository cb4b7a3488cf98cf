// Package users is the access layer for user records. It validates input,
// hashes credentials, persists through a storage.UserStore and hands back
// shaped models.UserResponse values only.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/auth"
	"github.com/hongminglow/userhub/internal/events"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/models"
	"github.com/hongminglow/userhub/internal/storage"
)

const minPasswordLen = 8

// Repository is the public contract of the access layer.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.UserResponse, error)
	CreateUser(ctx context.Context, in models.NewUser) (models.UserResponse, error)
	UpdateUser(ctx context.Context, id uuid.UUID, email, name string) (models.UserResponse, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) (models.UserResponse, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (int64, error)
	ListUsers(ctx context.Context) ([]models.UserResponse, error)
	Authenticate(ctx context.Context, email, password string) (*models.UserResponse, error)
}

var _ Repository = (*Service)(nil)

// Service implements Repository. It keeps no per-request state.
type Service struct {
	store     storage.UserStore
	hasher    auth.PasswordHasher
	publisher events.Publisher
	log       logging.Logger
}

// NewService wires the access layer. A nil publisher or logger is replaced by a no-op.
func NewService(store storage.UserStore, hasher auth.PasswordHasher, publisher events.Publisher, log logging.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Service{store: store, hasher: hasher, publisher: publisher, log: log.With("component", "users")}
}

// FindByEmail returns nil, nil when no user has that email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.UserResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}

// CreateUser validates in, hashes the password and inserts the record.
func (s *Service) CreateUser(ctx context.Context, in models.NewUser) (models.UserResponse, error) {
	email, name, err := validateProfile(in.Email, in.Name)
	if err != nil {
		return models.UserResponse{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return models.UserResponse{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.UserResponse{}, hashingError("create user", err)
	}

	user, err := s.store.Insert(ctx, models.NewUserRecord{Email: email, PasswordHash: hash, Name: name})
	if err != nil {
		return models.UserResponse{}, err
	}
	resp := user.ToResponse()
	s.log.Info(ctx, "user created", "user_id", resp.ID)
	s.publish(ctx, events.NewUserEvent(events.UserCreated, resp.ID, &resp))
	return resp, nil
}

// UpdateUser overwrites email and name.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, email, name string) (models.UserResponse, error) {
	email, name, err := validateProfile(email, name)
	if err != nil {
		return models.UserResponse{}, err
	}
	if id == uuid.Nil {
		return models.UserResponse{}, storage.NewError(storage.KindNotFound, "update user", nil)
	}

	user, err := s.store.UpdateProfile(ctx, id, email, name)
	if err != nil {
		return models.UserResponse{}, err
	}
	resp := user.ToResponse()
	s.log.Info(ctx, "user updated", "user_id", resp.ID)
	s.publish(ctx, events.NewUserEvent(events.UserUpdated, resp.ID, &resp))
	return resp, nil
}

// UpdatePassword re-hashes password and overwrites the stored hash.
func (s *Service) UpdatePassword(ctx context.Context, id uuid.UUID, password string) (models.UserResponse, error) {
	if err := validatePassword(password); err != nil {
		return models.UserResponse{}, err
	}
	if id == uuid.Nil {
		return models.UserResponse{}, storage.NewError(storage.KindNotFound, "update password", nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.UserResponse{}, hashingError("update password", err)
	}

	user, err := s.store.UpdatePasswordHash(ctx, id, hash)
	if err != nil {
		return models.UserResponse{}, err
	}
	resp := user.ToResponse()
	s.log.Info(ctx, "user password changed", "user_id", resp.ID)
	s.publish(ctx, events.NewUserEvent(events.UserPasswordChanged, resp.ID, &resp))
	return resp, nil
}

// DeleteUser removes the user and returns 1, or 0 when it was already gone.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) (int64, error) {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info(ctx, "user deleted", "user_id", id)
		s.publish(ctx, events.NewUserEvent(events.UserDeleted, id, nil))
	}
	return n, nil
}

// ListUsers returns every user, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]models.UserResponse, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.ShapeAll[models.User, models.UserResponse](all), nil
}

// Authenticate returns the user when password matches, nil otherwise.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.UserResponse, error) {
	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil
	}
	resp := user.ToResponse()
	return &resp, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn(ctx, "publish event failed", "event", evt.Type, "user_id", evt.UserID, "error", err)
	}
}

func validateProfile(email, name string) (string, string, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return "", "", storage.NewError(storage.KindValidation, "validate", errors.New("email and name are required"))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", storage.NewError(storage.KindValidation, "validate", fmt.Errorf("invalid email %q", email))
	}
	return email, name, nil
}

func validatePassword(password string) error {
	if !utf8.ValidString(password) || utf8.RuneCountInString(strings.TrimSpace(password)) < minPasswordLen {
		return storage.NewError(storage.KindValidation, "validate", fmt.Errorf("password must be at least %d characters", minPasswordLen))
	}
	return nil
}

// hashingError keeps the hasher's own error when it is already classified.
func hashingError(op string, err error) error {
	if storage.KindOf(err) == storage.KindHashing {
		return err
	}
	return storage.NewError(storage.KindHashing, op, err)
}
