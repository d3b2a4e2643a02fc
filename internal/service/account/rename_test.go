package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectcast/identity/internal/domain"
)

func permanentSeed() domain.Account {
	return domain.Account{
		Username:    "alice",
		Secret:      "alice-secret",
		Kind:        domain.KindPermanent,
		DisplayName: "Alice",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpdateChangesDisplayName(t *testing.T) {
	store := newStubStore(permanentSeed())
	svc := newTestService(store)

	acc, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", DisplayName: "Alice B.",
	})
	require.NoError(t, err)
	require.Equal(t, "Alice B.", acc.DisplayName)
	require.Equal(t, "alice", acc.Username)
	require.Equal(t, "alice-secret", store.records["alice"].Secret)
	require.Zero(t, store.delCalls)
}

func TestUpdateRejectsWrongSecret(t *testing.T) {
	store := newStubStore(permanentSeed())
	svc := newTestService(store)

	_, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "wrong", DisplayName: "Mallory",
	})
	requireCode(t, err, CodeCredentials)
	require.Equal(t, "Alice", store.records["alice"].DisplayName)
}

func TestUpdateRejectsNonPermanentAccounts(t *testing.T) {
	for _, kind := range []domain.Kind{domain.KindTemporary, domain.KindAnonymous} {
		store := newStubStore(domain.Account{Username: "guest", Secret: "s", Kind: kind})
		svc := newTestService(store)

		_, err := svc.Update(context.Background(), UpdateInput{
			Username: "guest", Secret: "s", DisplayName: "New",
		})
		requireCode(t, err, CodeCredentials)
	}
}

func TestRenameMovesRecordAndDeletesOldKey(t *testing.T) {
	seed := permanentSeed()
	store := newStubStore(seed)
	svc := newTestService(store)

	acc, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "alicia",
	})
	require.NoError(t, err)
	require.Equal(t, "alicia", acc.Username)

	require.NotContains(t, store.records, "alice")
	moved := store.records["alicia"]
	// Everything but the username carries over.
	require.Equal(t, seed.Secret, moved.Secret)
	require.Equal(t, seed.Kind, moved.Kind)
	require.Equal(t, seed.DisplayName, moved.DisplayName)
	require.Equal(t, seed.CreatedAt, moved.CreatedAt)
}

func TestRenameTargetMustBeClaimable(t *testing.T) {
	store := newStubStore(
		permanentSeed(),
		domain.Account{Username: "bob", Secret: "s", Kind: domain.KindPermanent},
	)
	svc := newTestService(store)

	_, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "bob",
	})
	requireCode(t, err, CodeDuplicate)
	require.Contains(t, store.records, "alice")
	require.Equal(t, "s", store.records["bob"].Secret)
}

func TestRenameReclaimsStaleTemporaryTarget(t *testing.T) {
	seed := permanentSeed()
	store := newStubStore(
		seed,
		domain.Account{Username: "guest-7", Secret: "s", Kind: domain.KindTemporary, CreatedAt: seed.CreatedAt},
	)
	svc := newTestService(store)
	svc.now = fixedClock(seed.CreatedAt.Add(defaultTakeoverStaleAfter + time.Hour))

	acc, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "guest-7",
	})
	require.NoError(t, err)
	require.Equal(t, seed.Secret, acc.Secret)
	require.NotContains(t, store.records, "alice")
}

func TestRenameCreateFailureLeavesOldRecordIntact(t *testing.T) {
	store := newStubStore(permanentSeed())
	store.putErr = errors.New("write refused")
	svc := newTestService(store)

	_, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "alicia",
	})
	requireCode(t, err, CodeDatabase)
	require.Contains(t, store.records, "alice")
	require.NotContains(t, store.records, "alicia")
	require.Zero(t, store.delCalls)
}

func TestRenameDeleteFailureReportsAndKeepsBothCopies(t *testing.T) {
	store := newStubStore(permanentSeed())
	store.delErr = errors.New("delete refused")
	svc := newTestService(store)

	_, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "alicia",
	})
	requireCode(t, err, CodeDatabase)
	// No rollback: the new copy stays, the old copy is left for
	// reconciliation.
	require.Contains(t, store.records, "alicia")
	require.Contains(t, store.records, "alice")
}

func TestRenameEventReachesBroadcaster(t *testing.T) {
	store := newStubStore(permanentSeed())
	events := &recordingBroadcaster{}
	svc := newTestService(store)
	svc.events = events

	_, err := svc.Update(context.Background(), UpdateInput{
		Username: "alice", Secret: "alice-secret", NewUsername: "alicia",
	})
	require.NoError(t, err)
	require.Len(t, events.calls, 1)
	require.Equal(t, EventRenamed, events.calls[0].event)
	require.Equal(t, "alicia", events.calls[0].account.Username)
}

type broadcastCall struct {
	event   string
	account domain.PublicAccount
}

type recordingBroadcaster struct {
	calls []broadcastCall
}

func (r *recordingBroadcaster) AccountEvent(event string, account domain.PublicAccount) {
	r.calls = append(r.calls, broadcastCall{event: event, account: account})
}
