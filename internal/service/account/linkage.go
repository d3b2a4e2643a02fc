package account

import (
	"context"
	"errors"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
)

// resolveLink validates the link target and attaches the back-reference to
// the draft. An empty target is a pass-through. Preconditions are checked
// in order, short-circuiting on the first failure:
//
//  1. the target exists,
//  2. the target is permanent (temporary and anonymous accounts cannot be
//     link targets),
//  3. the supplied proof matches the target's secret,
//  4. the draft being linked is itself temporary.
//
// The target is never mutated; linkage is a back-reference only.
func (s Service) resolveLink(ctx context.Context, draft *domain.Account, target, proof string) error {
	if target == "" {
		return nil
	}
	linkee, err := s.store.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(CodeCredentials, errors.New("link target does not exist"))
		}
		return NewError(CodeDatabase, err)
	}
	if linkee.Kind != domain.KindPermanent {
		return NewError(CodeCredentials, errors.New("link target is not permanent"))
	}
	if !secretsEqual(linkee.Secret, proof) {
		return NewError(CodeCredentials, errors.New("link proof mismatch"))
	}
	if draft.Kind != domain.KindTemporary {
		return NewError(CodeValidation, errors.New("only temporary accounts can be linked"))
	}
	draft.Linked = target
	return nil
}
