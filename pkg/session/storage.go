package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no session exists for the ID.
var ErrNotFound = errors.New("session: not found")

// Storage is the persistence boundary the app supplies. The SDK only ever
// creates, reads and deletes whole session records, so drivers stay thin.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store inserts or replaces a session by ID.
	Store(ctx context.Context, s *Session) error

	// Load returns the session for the ID, or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an
	// error.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes a batch of sessions by ID.
	DeleteMany(ctx context.Context, ids []string) error

	// FindByShop returns every session stored for a shop, used when an
	// app is uninstalled and all of a shop's tokens must go.
	FindByShop(ctx context.Context, shop string) ([]*Session, error)
}
