package auth

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/service/account"
	"github.com/spectcast/identity/pkg/config"
	jwtpkg "github.com/spectcast/identity/pkg/jwt"
)

// Accounts is the slice of the account service the gateway flows need.
type Accounts interface {
	Verify(ctx context.Context, username, secret string, forEdit bool) (bool, error)
	Lookup(ctx context.Context, username string) (*domain.Account, error)
}

// Service handles the realtime gateway's authentication handshakes. These
// flows are server-to-server: responses feed the gateway's own envelope, so
// they carry no success flag.
type Service struct {
	accounts Accounts
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(accounts Accounts, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{accounts: accounts, logger: logger, cfg: cfg}
}

// Bounds on the opaque token accepted by the passthrough handshake.
const (
	handshakeSecretMinLen = 10
	handshakeSecretMaxLen = 30
)

// HandshakeResult is echoed back to the gateway for session bootstrap.
type HandshakeResult struct {
	UserID     string         `json:"userId"`
	ClientData map[string]any `json:"clientData"`
	ServerData map[string]any `json:"serverData"`
}

// Handshake validates that the supplied opaque token is well-formed and
// echoes it back. No store access: the gateway only needs the token pinned
// into its server-side session data.
func (s Service) Handshake(secret string) (*HandshakeResult, error) {
	if len(secret) < handshakeSecretMinLen || len(secret) > handshakeSecretMaxLen {
		return nil, account.NewError(account.CodeValidation, errors.New("malformed handshake token"))
	}
	return &HandshakeResult{
		UserID:     "generic",
		ClientData: map[string]any{"message": "valid token"},
		ServerData: map[string]any{"secret": secret},
	}, nil
}

// LoginResult carries the gateway session payload for a verified account.
type LoginResult struct {
	Username   string         `json:"username"`
	ClientData map[string]any `json:"clientData"`
	ServerData map[string]any `json:"serverData"`
}

// Login verifies account credentials on behalf of the gateway, then re-reads
// the record and issues a signed session token. Verification is not in edit
// mode: temporary and anonymous identities may log in, they just cannot be
// edited.
func (s Service) Login(ctx context.Context, username, secret string) (*LoginResult, error) {
	valid, err := s.accounts.Verify(ctx, username, secret, false)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, account.NewError(account.CodeCredentials, errors.New("login rejected"))
	}
	acc, err := s.accounts.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	token, err := jwtpkg.GenerateToken(acc.Username, string(acc.Kind), s.cfg.JWTSecret, s.cfg.SessionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	s.logger.Info("gateway login", "username", acc.Username, "kind", string(acc.Kind))
	serverData := map[string]any{
		"kind":         string(acc.Kind),
		"sessionToken": token,
	}
	if acc.Linked != "" {
		serverData["linked"] = acc.Linked
	}
	return &LoginResult{
		Username:   acc.Username,
		ClientData: map[string]any{},
		ServerData: serverData,
	}, nil
}
