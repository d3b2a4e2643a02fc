package account

import (
	"context"
	"errors"
	"time"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
)

// defaultTakeoverStaleAfter is how long a temporary account must sit
// untouched before anyone may reclaim its username without a control proof.
const defaultTakeoverStaleAfter = 24 * time.Hour

type takeoverAction int

const (
	actionCreate takeoverAction = iota
	actionOverwrite
)

type takeoverDecision struct {
	action   takeoverAction
	existing *domain.Account
}

// resolveTakeover decides whether username is free to create or whether an
// existing temporary record may be reclaimed. Only temporary accounts are
// ever overwritten: permanent and anonymous records always make the name a
// duplicate. A temporary record yields when the caller proves prior control
// with its secret, or when the record has gone stale. This decision is a
// check-then-act read; the winner of a concurrent race is whoever's write
// lands last, per the store's single-key semantics.
func (s Service) resolveTakeover(ctx context.Context, username, controlProof string) (takeoverDecision, error) {
	existing, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return takeoverDecision{action: actionCreate}, nil
		}
		return takeoverDecision{}, NewError(CodeDatabase, err)
	}
	if existing.Kind != domain.KindTemporary {
		return takeoverDecision{}, NewError(CodeDuplicate, errors.New("username already registered"))
	}
	controlled := controlProof != "" && secretsEqual(existing.Secret, controlProof)
	if controlled || existing.StalerThan(s.now(), s.staleAfter()) {
		return takeoverDecision{action: actionOverwrite, existing: existing}, nil
	}
	return takeoverDecision{}, NewError(CodeDuplicate, errors.New("temporary account still active"))
}

func (s Service) staleAfter() time.Duration {
	if s.cfg.TakeoverStaleAfter > 0 {
		return s.cfg.TakeoverStaleAfter
	}
	return defaultTakeoverStaleAfter
}
