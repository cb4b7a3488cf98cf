package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted users row. PasswordHash never leaves the access layer.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser is the caller's registration input; Password is plaintext.
type NewUser struct {
	Email    string
	Password string
	Name     string
}

// NewUserRecord is what the store inserts, with the password already hashed.
type NewUserRecord struct {
	Email        string
	PasswordHash string
	Name         string
}

// UserResponse is the public view of a User.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse shapes the record for callers outside the access layer.
func (u User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}
