package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryption_JSONRoundTripBoundToUser(t *testing.T) {
	master, err := GenerateMasterKey()
	require.NoError(t, err)
	enc, err := NewEncryption(master)
	require.NoError(t, err)

	in := [][]float64{{0.6, 0.8}, {1, 0}}
	ct, err := enc.EncryptJSON("u1", in)
	require.NoError(t, err)

	var out [][]float64
	require.NoError(t, enc.DecryptJSON("u1", ct, &out))
	assert.Equal(t, in, out)

	assert.Error(t, enc.DecryptJSON("u2", ct, &out), "ciphertext must not open for another user")
}

func TestNewEncryption_ShortKey(t *testing.T) {
	_, err := NewEncryption("too-short")
	assert.Error(t, err)
}

func TestEncryption_DifferentSecretsCannotRead(t *testing.T) {
	a, err := NewEncryption("0123456789abcdef0123456789abcdef-a")
	require.NoError(t, err)
	b, err := NewEncryption("0123456789abcdef0123456789abcdef-b")
	require.NoError(t, err)

	ct, err := a.EncryptBytes([]byte("x"), nil)
	require.NoError(t, err)
	_, err = b.DecryptBytes(ct, nil)
	assert.Error(t, err)
}

func TestHybridCodec_RoundTrip(t *testing.T) {
	codec, err := GenerateHybridCodec(2048)
	require.NoError(t, err)
	assert.Contains(t, codec.PublicKey(), "BEGIN PUBLIC KEY")

	env, err := EncryptHybrid(codec.RSAPublicKey(), "biometrics", []byte(`{"frames":["a"]}`))
	require.NoError(t, err)

	plain, err := codec.DecryptHybrid(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"frames":["a"]}`, string(plain))
}

func TestHybridCodec_TamperedTag(t *testing.T) {
	codec, err := GenerateHybridCodec(2048)
	require.NoError(t, err)
	env, err := EncryptHybrid(codec.RSAPublicKey(), "biometrics", []byte("hello"))
	require.NoError(t, err)

	other, err := EncryptHybrid(codec.RSAPublicKey(), "biometrics", []byte("hello"))
	require.NoError(t, err)
	env.AuthTag = other.AuthTag

	_, err = codec.DecryptHybrid(env)
	assert.Error(t, err)
}

func TestHybridCodec_BadFields(t *testing.T) {
	codec, err := GenerateHybridCodec(2048)
	require.NoError(t, err)

	_, err = codec.DecryptHybrid(Envelope{EncryptedKey: "!!", IV: "", Ciphertext: "", AuthTag: ""})
	assert.Error(t, err)
}

func TestLoadHybridCodec(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(pkcs1, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}), 0o600))

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	for _, p := range []string{pkcs1, pkcs8} {
		codec, err := LoadHybridCodec(p, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, codec.KeyVersion())
		assert.True(t, codec.RSAPublicKey().Equal(&priv.PublicKey))
	}

	_, err = LoadHybridCodec(filepath.Join(dir, "missing.pem"), 1)
	assert.Error(t, err)
}
