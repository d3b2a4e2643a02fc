package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("alice", "permanent", "signing-key", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, "signing-key")
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "permanent", claims.Kind)
	require.Equal(t, "spectcast-identity", claims.Issuer)
	require.Equal(t, "alice", claims.Subject)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("alice", "permanent", "signing-key", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-key")
	require.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken("alice", "permanent", "signing-key", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "signing-key")
	require.Error(t, err)
}
