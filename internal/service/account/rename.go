package account

import (
	"context"
	"errors"

	"github.com/spectcast/identity/internal/domain"
)

// UpdateInput carries an owner-authenticated mutation. NewUsername, when
// set, turns the update into a rename.
type UpdateInput struct {
	Username    string
	Secret      string
	DisplayName string
	NewUsername string
}

// Update mutates an account after verifying ownership in edit mode. A
// display-name change is a single atomic key write; a username change runs
// the create-before-delete rename protocol.
func (s Service) Update(ctx context.Context, in UpdateInput) (*domain.Account, error) {
	valid, err := s.Verify(ctx, in.Username, in.Secret, true)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, NewError(CodeCredentials, errors.New("edit not authorized"))
	}

	if in.NewUsername != "" && in.NewUsername != in.Username {
		return s.rename(ctx, in.Username, in.NewUsername, in.DisplayName)
	}

	// Re-read and re-validate before writing; no blind overwrite of unseen
	// state.
	current, err := s.Lookup(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != "" {
		current.DisplayName = in.DisplayName
	}
	if err := s.store.Put(ctx, current); err != nil {
		return nil, NewError(CodeDatabase, err)
	}
	s.logger.Info("account updated", "username", current.Username)
	s.broadcast(EventUpdated, current.Public())
	return current, nil
}

// rename changes an account's primary identifier. The store is atomic per
// key only, so the rename is a sequence: read the old record, check the new
// name is claimable, write the new key, and only then delete the old key.
//
// Failure before the new write leaves the old record intact and nothing
// created. Failure of the delete after a successful write leaves two copies
// sharing history; that state is reported as a database error and left for
// an external reconciliation pass, never rolled back here. The ordering
// guarantees there is never a moment with zero copies of the account.
func (s Service) rename(ctx context.Context, oldUsername, newUsername, displayName string) (*domain.Account, error) {
	record, err := s.Lookup(ctx, oldUsername)
	if err != nil {
		return nil, err
	}
	// The target name follows the same takeover rules as registration,
	// with no control proof: free names and stale temporary records only.
	if _, err := s.resolveTakeover(ctx, newUsername, ""); err != nil {
		return nil, err
	}

	renamed := *record
	renamed.Username = newUsername
	if displayName != "" {
		renamed.DisplayName = displayName
	}
	if err := s.store.Put(ctx, &renamed); err != nil {
		// Old record untouched, new key never created.
		return nil, NewError(CodeDatabase, err)
	}
	if err := s.store.Delete(ctx, oldUsername); err != nil {
		renameOrphansTotal.Inc()
		s.logger.Error("rename left duplicate records, reconciliation required",
			"old", oldUsername, "new", newUsername, "error", err)
		return nil, NewError(CodeDatabase, err)
	}
	renamesTotal.Inc()
	s.logger.Info("account renamed", "old", oldUsername, "new", newUsername)
	s.broadcast(EventRenamed, renamed.Public())
	return &renamed, nil
}
