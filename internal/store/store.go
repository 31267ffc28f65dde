// Package store owns the canonical user and message collections. Two
// backends implement the same contract: a flat JSON-file store (the default)
// and a Postgres store for deployments that outgrow flat files.
package store

import (
	"context"

	"github.com/lettermill/lettermill/internal/models"
)

// Store is the persistence contract. Implementations must be safe for
// concurrent use; the flat backend serializes every mutation behind a single
// writer lock.
type Store interface {
	// CreateUser inserts a new user, assigning the next sequential id.
	// Returns common.ErrAlreadyExists if the email is already registered.
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	// GetUser returns the user keyed by email, or common.ErrNotFound.
	GetUser(ctx context.Context, email string) (models.User, error)
	// GetUserByID returns the user with the given id, or common.ErrNotFound.
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	// UpdateUser overwrites the record keyed by user.Email.
	UpdateUser(ctx context.Context, user models.User) error
	// ListUsers returns all users in unspecified order.
	ListUsers(ctx context.Context) ([]models.User, error)

	// AddMessage appends a message, assigning id and created-at when unset.
	AddMessage(ctx context.Context, msg models.Message) (models.Message, error)
	// AddMessages appends a batch in one durable write.
	AddMessages(ctx context.Context, msgs []models.Message) ([]models.Message, error)
	// GetMessage returns the message with the given id, or common.ErrNotFound.
	GetMessage(ctx context.Context, id string) (models.Message, error)
	// UpdateMessage overwrites the record keyed by msg.ID.
	UpdateMessage(ctx context.Context, msg models.Message) error
	// DeleteMessage removes the message with the given id.
	DeleteMessage(ctx context.Context, id string) error
	// ListMessages returns all messages in insertion order.
	ListMessages(ctx context.Context) ([]models.Message, error)

	Close()
}
