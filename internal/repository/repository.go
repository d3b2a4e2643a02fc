package repository

import (
	"context"

	"github.com/spectcast/identity/internal/domain"
)

// AccountStore persists accounts in a single-key atomic store. Each call
// addresses exactly one key and is atomic on its own; there are no multi-key
// transactions, so callers sequencing several calls own the partial-failure
// semantics.
type AccountStore interface {
	// Get returns the account stored under username, or ErrNotFound.
	Get(ctx context.Context, username string) (*domain.Account, error)
	// Put durably writes the account under its username, creating or
	// replacing the record.
	Put(ctx context.Context, account *domain.Account) error
	// Delete removes the record under username. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, username string) error
	// BatchGet returns the accounts that exist among usernames, silently
	// omitting missing keys. A shorter result than the request is a partial
	// read, not a failure.
	BatchGet(ctx context.Context, usernames []string) ([]domain.Account, error)
	// Ping reports store reachability.
	Ping(ctx context.Context) error
}
