package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/models"
)

// UserStore captures the persistence operations over the users table.
//
// Implementations lease a connection per call and release it before returning.
// Errors are reported through the kinds in errors.go; a missing row on a
// lookup by email is ErrNotFound here and is turned into "absent" by callers.
type UserStore interface {
	Insert(ctx context.Context, rec models.NewUserRecord) (models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, email, name string) (models.User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (models.User, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	Ping(ctx context.Context) error
	Close()
}
