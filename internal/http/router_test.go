package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/require"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
	"github.com/spectcast/identity/internal/service/account"
	"github.com/spectcast/identity/internal/service/auth"
	"github.com/spectcast/identity/internal/service/events"
	"github.com/spectcast/identity/internal/ws"
	"github.com/spectcast/identity/pkg/config"
)

const testGatewayToken = "test-gateway-token"

type memStore struct {
	records map[string]domain.Account
	pingErr error
}

func newMemStore(seed ...domain.Account) *memStore {
	s := &memStore{records: make(map[string]domain.Account)}
	for _, acc := range seed {
		s.records[acc.Username] = acc
	}
	return s
}

func (s *memStore) Get(ctx context.Context, username string) (*domain.Account, error) {
	acc, ok := s.records[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := acc
	return &clone, nil
}

func (s *memStore) Put(ctx context.Context, account *domain.Account) error {
	s.records[account.Username] = *account
	return nil
}

func (s *memStore) Delete(ctx context.Context, username string) error {
	delete(s.records, username)
	return nil
}

func (s *memStore) BatchGet(ctx context.Context, usernames []string) ([]domain.Account, error) {
	var out []domain.Account
	for _, username := range usernames {
		if acc, ok := s.records[username]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *memStore) Ping(ctx context.Context) error { return s.pingErr }

func newTestRouter(t *testing.T, store *memStore) *Router {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:       "test-signing-key",
		SessionTokenTTL: time.Hour,
	}
	eventSvc := events.New(ws.NewHub(), log)
	accountSvc := account.New(store, eventSvc, log, cfg)
	authSvc := auth.New(accountSvc, log, cfg)
	router := NewRouter(log, accountSvc, authSvc, eventSvc, nil, testGatewayToken, store.Ping)
	t.Cleanup(router.Close)
	return router
}

func postJSON(t *testing.T, router *Router, path string, body map[string]any, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func gatewayHeader() map[string]string {
	return map[string]string{"X-Gateway-Token": testGatewayToken}
}

func TestAnonymousEndpoint(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	rec, body := postJSON(t, router, "/v1/accounts/anonymous", map[string]any{"name": "Guest"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	acc, ok := body["account"].(map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, acc["username"])
	require.NotEmpty(t, acc["secret"])
	require.Equal(t, "anonymous", acc["kind"])
	require.Contains(t, store.records, acc["username"].(string))
}

func TestAnonymousRejectsMissingName(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/accounts/anonymous", map[string]any{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "validation error", body["message"])
}

func TestRegisterLifecycle(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	payload := map[string]any{"username": "bob", "name": "Bob", "temporary": false}
	rec, body := postJSON(t, router, "/v1/accounts/register", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := body["account"].(map[string]any)
	require.Equal(t, "permanent", acc["kind"])
	require.NotEmpty(t, acc["secret"])

	// Same name again: a duplicate, not an overwrite.
	rec, body = postJSON(t, router, "/v1/accounts/register", payload, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "duplicate error", body["message"])
	require.Equal(t, false, body["success"])

	// A temporary record past the staleness window yields its name.
	record := store.records["bob"]
	record.Kind = domain.KindTemporary
	record.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	store.records["bob"] = record

	rec, body = postJSON(t, router, "/v1/accounts/register", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc = body["account"].(map[string]any)
	require.NotEqual(t, record.Secret, acc["secret"])
}

func TestRegisterLinkedRequiresProofPair(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/accounts/register", map[string]any{
		"username": "guest-7", "name": "Guest", "temporary": true, "linked": "alice",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "validation error", body["message"])
}

func TestRegisterRequiresTemporaryFlag(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/accounts/register", map[string]any{
		"username": "bob", "name": "Bob",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "validation error", body["message"])
}

func TestUpdateRename(t *testing.T) {
	store := newMemStore(domain.Account{
		Username: "alice", Secret: "alice-secret", Kind: domain.KindPermanent, DisplayName: "Alice",
	})
	router := newTestRouter(t, store)

	rec, body := postJSON(t, router, "/v1/accounts/update", map[string]any{
		"username": "alice", "secret": "alice-secret", "newUsername": "alicia",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := body["account"].(map[string]any)
	require.Equal(t, "alicia", acc["username"])
	require.NotContains(t, store.records, "alice")
	require.Contains(t, store.records, "alicia")
}

func TestUpdateWrongSecret(t *testing.T) {
	store := newMemStore(domain.Account{
		Username: "alice", Secret: "alice-secret", Kind: domain.KindPermanent,
	})
	router := newTestRouter(t, store)

	rec, body := postJSON(t, router, "/v1/accounts/update", map[string]any{
		"username": "alice", "secret": "wrong", "name": "Mallory",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "credentials error", body["message"])
}

func TestBatchPartialProjection(t *testing.T) {
	store := newMemStore(
		domain.Account{Username: "alice", Secret: "s1", Kind: domain.KindPermanent, DisplayName: "Alice"},
		domain.Account{Username: "bob", Secret: "s2", Kind: domain.KindTemporary, Linked: "alice"},
	)
	router := newTestRouter(t, store)

	rec, body := postJSON(t, router, "/v1/accounts/batch", map[string]any{
		"users": []string{"alice", "bob", "ghost"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["partial"])

	data := body["data"].([]any)
	require.Len(t, data, 2)
	for _, item := range data {
		entry := item.(map[string]any)
		require.NotContains(t, entry, "secret")
		require.NotContains(t, entry, "kind")
	}
}

func TestBatchSizeBounds(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, _ := postJSON(t, router, "/v1/accounts/batch", map[string]any{"users": []string{}}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	oversized := make([]string, account.BatchReadLimit+1)
	for i := range oversized {
		oversized[i] = "user"
	}
	rec, _ = postJSON(t, router, "/v1/accounts/batch", map[string]any{"users": oversized}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatewayRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/auth/login", map[string]any{
		"authData": map[string]any{"username": "alice", "secret": "s"},
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid gateway token", body["message"])
}

func TestLoginEnvelopeOmitsSuccessFlag(t *testing.T) {
	store := newMemStore(domain.Account{
		Username: "alice", Secret: "alice-secret", Kind: domain.KindPermanent,
	})
	router := newTestRouter(t, store)

	rec, body := postJSON(t, router, "/v1/auth/login", map[string]any{
		"authData": map[string]any{"username": "alice", "secret": "alice-secret"},
	}, gatewayHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, body, "success")
	require.Equal(t, "alice", body["username"])

	serverData := body["serverData"].(map[string]any)
	require.Equal(t, "permanent", serverData["kind"])
	require.NotEmpty(t, serverData["sessionToken"])
}

func TestLoginInvalidCredentialsCarrySuccessFlag(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/auth/login", map[string]any{
		"authData": map[string]any{"username": "ghost", "secret": "wrong"},
	}, gatewayHeader())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "credentials error", body["message"])
	require.Equal(t, false, body["success"])
}

func TestHandshakeEnvelope(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	rec, body := postJSON(t, router, "/v1/auth/handshake", map[string]any{
		"authData": map[string]any{"secret": "abcdefghijkl"},
	}, gatewayHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "generic", body["userId"])
	require.NotContains(t, body, "success")

	rec, body = postJSON(t, router, "/v1/auth/handshake", map[string]any{
		"authData": map[string]any{"secret": "short"},
	}, gatewayHeader())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "validation error", body["message"])
}

func TestHealthzReflectsStoreState(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	store.pingErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/register", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	var lastCode int
	for i := 0; i < rateLimitAnonymous+1; i++ {
		rec, _ := postJSON(t, router, "/v1/accounts/anonymous", map[string]any{"name": "Guest"}, nil)
		lastCode = rec.Code
	}
	require.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestRateLimitBucketsAreScopedPerRoute(t *testing.T) {
	store := newMemStore(domain.Account{Username: "alice", Secret: "s", Kind: domain.KindPermanent})
	router := newTestRouter(t, store)

	for i := 0; i < rateLimitAnonymous; i++ {
		rec, _ := postJSON(t, router, "/v1/accounts/anonymous", map[string]any{"name": "Guest"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	// The anonymous bucket is exhausted, but batch still serves the same IP.
	rec, _ := postJSON(t, router, "/v1/accounts/batch", map[string]any{"users": []string{"alice"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
