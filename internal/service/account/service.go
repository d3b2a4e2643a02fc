package account

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
	"github.com/spectcast/identity/pkg/config"
)

// Broadcaster publishes public account events to realtime subscribers.
type Broadcaster interface {
	AccountEvent(event string, account domain.PublicAccount)
}

// Account event names published to the gateway stream.
const (
	EventCreated     = "created"
	EventOverwritten = "overwritten"
	EventUpdated     = "updated"
	EventRenamed     = "renamed"
)

// Service implements the account lifecycle state machine over a single-key
// atomic store. Per-request invocations share no state beyond the store, so
// every multi-step flow re-reads and re-validates before writing; races
// between concurrent requests are resolved by the store's per-key atomicity,
// not by locks.
type Service struct {
	store  repository.AccountStore
	events Broadcaster
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// New constructs a Service. events may be nil when no realtime stream is
// attached.
func New(store repository.AccountStore, events Broadcaster, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{store: store, events: events, logger: logger, cfg: cfg, now: time.Now}
}

// Lookup reads the full account record. Absence surfaces as a database
// error: callers reach here only after an existence or credential check, so
// a missing record means the store mutated underneath us.
func (s Service) Lookup(ctx context.Context, username string) (*domain.Account, error) {
	acc, err := s.store.Get(ctx, username)
	if err != nil {
		return nil, NewError(CodeDatabase, err)
	}
	return acc, nil
}

// Exists reports whether a record is stored under username.
func (s Service) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, NewError(CodeDatabase, err)
	}
	return true, nil
}

func (s Service) broadcast(event string, account domain.PublicAccount) {
	if s.events == nil {
		return
	}
	s.events.AccountEvent(event, account)
}
