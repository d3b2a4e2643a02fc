package account

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/spectcast/identity/internal/domain"
)

// maxGenerateAttempts bounds username generation retries when a generated
// identifier collides with an existing record.
const maxGenerateAttempts = 5

// CreateAnonymous builds and persists an ephemeral account with a generated
// username and a fresh secret. Generated identifiers are re-checked for
// existence before the write and regenerated on collision rather than
// trusted to be unique.
func (s Service) CreateAnonymous(ctx context.Context, displayName string) (*domain.Account, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		username := uuid.NewString()
		exists, err := s.Exists(ctx, username)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		acc := &domain.Account{
			Username:    username,
			Secret:      uuid.NewString(),
			Kind:        domain.KindAnonymous,
			DisplayName: displayName,
			CreatedAt:   now,
		}
		if err := s.store.Put(ctx, acc); err != nil {
			return nil, NewError(CodeDatabase, err)
		}
		s.logger.Info("anonymous account created", "username", acc.Username)
		s.broadcast(EventCreated, acc.Public())
		return acc, nil
	}
	return nil, NewError(CodeDuplicate, errors.New("username generation exhausted"))
}

// RegisterInput carries a registration request. Linked and LinkedSecret must
// be supplied together; ControlSecret optionally proves prior control of an
// existing temporary record under the same username.
type RegisterInput struct {
	Username      string
	DisplayName   string
	Temporary     bool
	Linked        string
	LinkedSecret  string
	ControlSecret string
}

// Register creates a named account, honoring linkage and takeover rules.
// Checks run in a fixed order so error reporting is deterministic: linkage
// first, then takeover eligibility of the requested username. No write
// happens before the first failing check.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	kind := domain.KindPermanent
	if in.Temporary {
		kind = domain.KindTemporary
	}
	draft := &domain.Account{
		Username:    in.Username,
		Secret:      uuid.NewString(),
		Kind:        kind,
		DisplayName: in.DisplayName,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.resolveLink(ctx, draft, in.Linked, in.LinkedSecret); err != nil {
		return nil, err
	}
	decision, err := s.resolveTakeover(ctx, in.Username, in.ControlSecret)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, draft); err != nil {
		return nil, NewError(CodeDatabase, err)
	}

	event := EventCreated
	if decision.action == actionOverwrite {
		event = EventOverwritten
		takeoversTotal.Inc()
	}
	s.logger.Info("account registered", "username", draft.Username, "kind", string(draft.Kind), "takeover", event == EventOverwritten)
	s.broadcast(event, draft.Public())
	return draft, nil
}
