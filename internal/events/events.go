// Package events publishes user lifecycle events to interested consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/models"
)

const (
	UserCreated         = "user.created"
	UserUpdated         = "user.updated"
	UserPasswordChanged = "user.password_changed"
	UserDeleted         = "user.deleted"
)

// Event is the envelope published for every user write.
type Event struct {
	ID         uuid.UUID            `json:"id"`
	Type       string               `json:"type"`
	OccurredAt time.Time            `json:"occurred_at"`
	UserID     uuid.UUID            `json:"user_id"`
	User       *models.UserResponse `json:"user,omitempty"`
}

// NewUserEvent stamps an event about user. user may be nil for deletions.
func NewUserEvent(eventType string, userID uuid.UUID, user *models.UserResponse) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		User:       user,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
