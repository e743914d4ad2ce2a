package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *JWTService {
	t.Helper()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return NewJWTService(kp, "airfi-portal")
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	token, err := svc.GenerateToken("user-1", "alice", true, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.Staff)
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.GenerateToken("user-1", "alice", false, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	t.Parallel()

	token, err := newService(t).GenerateToken("user-1", "alice", false, time.Hour)
	require.NoError(t, err)

	_, err = newService(t).ValidateToken(token)
	assert.Error(t, err)

	_, err = newService(t).ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys")

	first, err := LoadOrGenerateKeyPair(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, PrivateKeyFile))
	assert.FileExists(t, filepath.Join(dir, PublicKeyFile))

	second, err := LoadOrGenerateKeyPair(dir)
	require.NoError(t, err)
	assert.True(t, first.PrivateKey.Equal(second.PrivateKey))

	// Tokens signed before a restart still validate after it.
	token, err := NewJWTService(first, "i").GenerateToken("u", "n", false, time.Hour)
	require.NoError(t, err)
	_, err = NewJWTService(second, "i").ValidateToken(token)
	assert.NoError(t, err)
}

func TestLoadOrGenerateKeyPairCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile), []byte("garbage"), 0o600))

	_, err := LoadOrGenerateKeyPair(dir)
	assert.Error(t, err)
}
