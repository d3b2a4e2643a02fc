package account

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
)

// Verify checks the supplied secret against the stored account. It fails
// closed: a missing account or a mismatched secret reports invalid. When
// forEdit is set, temporary and anonymous accounts always report invalid;
// those identities are replaced via takeover or rename, never edited.
//
// A store fault is returned as a database-coded error, never folded into
// valid=false, so callers can tell "wrong credentials" apart from "could not
// check credentials".
func (s Service) Verify(ctx context.Context, username, secret string, forEdit bool) (bool, error) {
	acc, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, NewError(CodeDatabase, err)
	}
	if forEdit && (acc.Kind == domain.KindTemporary || acc.Kind == domain.KindAnonymous) {
		return false, nil
	}
	if !secretsEqual(acc.Secret, secret) {
		return false, nil
	}
	return true, nil
}

// secretsEqual compares opaque secrets in constant time.
func secretsEqual(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
