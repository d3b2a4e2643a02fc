package auth

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/require"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/service/account"
	"github.com/spectcast/identity/pkg/config"
	jwtpkg "github.com/spectcast/identity/pkg/jwt"
)

type stubAccounts struct {
	account   *domain.Account
	verify    bool
	verifyErr error
	lookupErr error
}

func (s *stubAccounts) Verify(ctx context.Context, username, secret string, forEdit bool) (bool, error) {
	return s.verify, s.verifyErr
}

func (s *stubAccounts) Lookup(ctx context.Context, username string) (*domain.Account, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	clone := *s.account
	return &clone, nil
}

func newTestService(accounts Accounts) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{JWTSecret: "test-signing-key", SessionTokenTTL: time.Hour}
	return New(accounts, log, cfg)
}

func TestHandshakeEchoesWellFormedToken(t *testing.T) {
	svc := newTestService(&stubAccounts{})

	result, err := svc.Handshake("abcdefghij")
	require.NoError(t, err)
	require.Equal(t, "generic", result.UserID)
	require.Equal(t, "abcdefghij", result.ServerData["secret"])
}

func TestHandshakeLengthBounds(t *testing.T) {
	svc := newTestService(&stubAccounts{})

	cases := map[string]struct {
		secret string
		ok     bool
	}{
		"too short":  {strings.Repeat("x", 9), false},
		"min length": {strings.Repeat("x", 10), true},
		"max length": {strings.Repeat("x", 30), true},
		"too long":   {strings.Repeat("x", 31), false},
		"empty":      {"", false},
	}
	for name, tc := range cases {
		_, err := svc.Handshake(tc.secret)
		if tc.ok {
			require.NoError(t, err, name)
			continue
		}
		code, tagged := account.CodeOf(err)
		require.True(t, tagged, name)
		require.Equal(t, account.CodeValidation, code, name)
	}
}

func TestLoginIssuesParsableSessionToken(t *testing.T) {
	accounts := &stubAccounts{
		verify: true,
		account: &domain.Account{
			Username: "alice", Secret: "s", Kind: domain.KindPermanent,
		},
	}
	svc := newTestService(accounts)

	result, err := svc.Login(context.Background(), "alice", "s")
	require.NoError(t, err)
	require.Equal(t, "alice", result.Username)
	require.Equal(t, "permanent", result.ServerData["kind"])
	require.NotContains(t, result.ServerData, "linked")

	token, ok := result.ServerData["sessionToken"].(string)
	require.True(t, ok)
	claims, err := jwtpkg.Parse(token, "test-signing-key")
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "permanent", claims.Kind)
}

func TestLoginIncludesLinkageWhenPresent(t *testing.T) {
	accounts := &stubAccounts{
		verify: true,
		account: &domain.Account{
			Username: "guest-7", Secret: "s", Kind: domain.KindTemporary, Linked: "alice",
		},
	}
	svc := newTestService(accounts)

	result, err := svc.Login(context.Background(), "guest-7", "s")
	require.NoError(t, err)
	require.Equal(t, "alice", result.ServerData["linked"])
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	svc := newTestService(&stubAccounts{verify: false})

	_, err := svc.Login(context.Background(), "alice", "wrong")
	code, tagged := account.CodeOf(err)
	require.True(t, tagged)
	require.Equal(t, account.CodeCredentials, code)
}

func TestLoginPropagatesStoreFault(t *testing.T) {
	fault := account.NewError(account.CodeDatabase, context.DeadlineExceeded)
	svc := newTestService(&stubAccounts{verifyErr: fault})

	_, err := svc.Login(context.Background(), "alice", "s")
	code, tagged := account.CodeOf(err)
	require.True(t, tagged)
	require.Equal(t, account.CodeDatabase, code)
}
