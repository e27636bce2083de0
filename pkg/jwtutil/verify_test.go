package jwtutil

import (
	"crypto/rand"
	"crypto/rsa"
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

func sign(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestVerifier_ParseAndValidate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := NewVerifier(&key.PublicKey, "onestaff", "biometrics")
	base := jwt.RegisteredClaims{
		Issuer:    "onestaff",
		Audience:  jwt.ClaimStrings{"biometrics"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := v.ParseAndValidate(sign(t, key, Claims{UserID: "u1", RegisteredClaims: base}))
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := v.ParseAndValidate(sign(t, other, Claims{UserID: "u1", RegisteredClaims: base}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("kid lookup", func(t *testing.T) {
		v.AddKey("k2", &other.PublicKey)
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{UserID: "u2", RegisteredClaims: base})
		tok.Header["kid"] = "k2"
		s, err := tok.SignedString(other)
		require.NoError(t, err)
		claims, err := v.ParseAndValidate(s)
		require.NoError(t, err)
		assert.Equal(t, "u2", claims.UserID)
	})

	t.Run("expired", func(t *testing.T) {
		expired := base
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.ParseAndValidate(sign(t, key, Claims{UserID: "u1", RegisteredClaims: expired}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing uid", func(t *testing.T) {
		_, err := v.ParseAndValidate(sign(t, key, Claims{RegisteredClaims: base}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		aud := base
		aud.Audience = jwt.ClaimStrings{"payments"}
		_, err := v.ParseAndValidate(sign(t, key, Claims{UserID: "u1", RegisteredClaims: aud}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func writePublicPEM(t *testing.T, dir, name string, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))
	return path
}

func TestLoadAndBuild_RotatedKeys(t *testing.T) {
	current, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	previous, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	v, err := LoadAndBuild(JWTConfig{
		PubPath:     writePublicPEM(t, dir, "current.pem", &current.PublicKey),
		RotatedKeys: map[string]string{"2025-q4": writePublicPEM(t, dir, "previous.pem", &previous.PublicKey)},
	})
	require.NoError(t, err)

	reg := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	claims, err := v.ParseAndValidate(sign(t, current, Claims{UserID: "u1", RegisteredClaims: reg}))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{UserID: "u2", RegisteredClaims: reg})
	tok.Header["kid"] = "2025-q4"
	signed, err := tok.SignedString(previous)
	require.NoError(t, err)
	claims, err = v.ParseAndValidate(signed)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.UserID)

	// the rotated key is not accepted without its kid
	_, err = v.ParseAndValidate(sign(t, previous, Claims{UserID: "u2", RegisteredClaims: reg}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadAndBuild_MissingRotatedKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()

	_, err = LoadAndBuild(JWTConfig{
		PubPath:     writePublicPEM(t, dir, "current.pem", &key.PublicKey),
		RotatedKeys: map[string]string{"old": filepath.Join(dir, "missing.pem")},
	})
	assert.Error(t, err)
}

func TestVerifier_RequiresExpiry(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewVerifier(&key.PublicKey, "", "")

	_, err = v.ParseAndValidate(sign(t, key, Claims{UserID: "u1"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
