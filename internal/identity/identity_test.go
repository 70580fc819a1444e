package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeyPairFile(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}

	path := filepath.Join(t.TempDir(), "ed25519_public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return priv, path
}

func signToken(t *testing.T, priv ed25519.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestNewJWTManager_LoadsPublicKeyFromPEM(t *testing.T) {
	_, path := generateKeyPairFile(t)
	mgr, err := NewJWTManager(path)
	require.NoError(t, err)
	assert.NotNil(t, mgr.publicKey)
}

func TestNewJWTManager_EmptyPathGeneratesEphemeralKey(t *testing.T) {
	mgr, err := NewJWTManager("")
	require.NoError(t, err)
	assert.NotNil(t, mgr.publicKey)
}

func TestNewJWTManager_MissingFileErrors(t *testing.T) {
	_, err := NewJWTManager(filepath.Join(t.TempDir(), "does-not-exist.pem"))
	assert.Error(t, err)
}

func TestValidateToken_AcceptsWellSignedToken(t *testing.T) {
	priv, path := generateKeyPairFile(t)
	mgr, err := NewJWTManager(path)
	require.NoError(t, err)

	signed := signToken(t, priv, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 42,
		Scopes: []string{VotePermissionScope},
	})

	claims, err := mgr.ValidateToken(signed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.True(t, claims.hasScope(VotePermissionScope))
}

func TestValidateToken_RejectsTokenSignedByUnknownKey(t *testing.T) {
	_, path := generateKeyPairFile(t)
	mgr, err := NewJWTManager(path)
	require.NoError(t, err)

	foreignPriv, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signed := signToken(t, foreignPriv, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	_, err = mgr.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateToken_RejectsExpiredToken(t *testing.T) {
	priv, path := generateKeyPairFile(t)
	mgr, err := NewJWTManager(path)
	require.NoError(t, err)

	signed := signToken(t, priv, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err = mgr.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateToken_RejectsWrongSigningMethod(t *testing.T) {
	_, path := generateKeyPairFile(t)
	mgr, err := NewJWTManager(path)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(signed)
	assert.Error(t, err)
}

func TestResolveAuthenticated_CarriesScopeAndUserID(t *testing.T) {
	claims := &Claims{UserID: 7, Scopes: []string{VotePermissionScope}}
	id := ResolveAuthenticated(claims, "session-1")

	assert.Equal(t, "session-1", id.SessionID)
	require.NotNil(t, id.UserID)
	assert.EqualValues(t, 7, *id.UserID)
	assert.True(t, id.HasVotePermission)
}

func TestResolveAuthenticated_MissingScopeDeniesVotePermission(t *testing.T) {
	claims := &Claims{UserID: 7, Scopes: []string{"read:leaderboard"}}
	id := ResolveAuthenticated(claims, "session-1")
	assert.False(t, id.HasVotePermission)
}

func TestResolveAnonymous_AlwaysPermitsVoting(t *testing.T) {
	tokenID := int64(99)
	id := ResolveAnonymous(&tokenID, "session-2")

	assert.Equal(t, "session-2", id.SessionID)
	require.NotNil(t, id.IdentificationTokenID)
	assert.EqualValues(t, 99, *id.IdentificationTokenID)
	assert.True(t, id.HasVotePermission)
	assert.Nil(t, id.UserID)
}
