package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := New("localhost:4600/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4600", c.baseURL)

	c, err = New("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4600", c.baseURL)
}

func TestRegisterRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/accounts/register", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "bob", payload["username"])
		// The flag is always on the wire, even when false.
		require.Contains(t, payload, "temporary")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"account": map[string]any{"username": "bob", "secret": "s", "kind": "permanent"},
			"success": true,
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	resp, err := c.Register(context.Background(), RegisterRequest{Username: "bob", Name: "Bob"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "bob", resp.Account.Username)
	require.Equal(t, "s", resp.Account.Secret)
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"message": "duplicate error", "success": false})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Register(context.Background(), RegisterRequest{Username: "bob", Name: "Bob"})
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "duplicate error", apiErr.Message)
}

func TestLoginSendsGatewayToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "gw-secret", r.Header.Get("X-Gateway-Token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"username":   "alice",
			"clientData": map[string]any{},
			"serverData": map[string]any{"kind": "permanent", "sessionToken": "tok"},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithGatewayToken("gw-secret"))
	require.NoError(t, err)

	resp, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "alice", resp.Username)
	require.Equal(t, "tok", resp.ServerData["sessionToken"])
}
