package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"os"
)

const (
	aesKeySize   = 32
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// Envelope is the client-encrypted capture payload. All binary fields are
// standard base64.
type Envelope struct {
	KeyType      string `json:"keyType"`
	Version      *int   `json:"version,omitempty"`
	EncryptedKey string `json:"encryptedKey"`
	IV           string `json:"iv"`
	Ciphertext   string `json:"ciphertext"`
	AuthTag      string `json:"authTag"`
}

// PayloadCodec opens capture envelopes and publishes the key clients wrap
// their session key with.
type PayloadCodec interface {
	DecryptHybrid(env Envelope) ([]byte, error)
	PublicKey() string
	KeyVersion() int
}

// HybridCodec unwraps the session key with RSA-OAEP(SHA-256) and opens the
// body with AES-256-GCM.
type HybridCodec struct {
	priv    *rsa.PrivateKey
	pubPEM  string
	version int
}

func NewHybridCodec(priv *rsa.PrivateKey, version int) (*HybridCodec, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &HybridCodec{priv: priv, pubPEM: string(pubPEM), version: version}, nil
}

// LoadHybridCodec reads a PKCS#1 or PKCS#8 RSA private key from path.
func LoadHybridCodec(path string, version int) (*HybridCodec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	var priv *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var k any
		k, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if priv, ok = k.(*rsa.PrivateKey); !ok {
				return nil, fmt.Errorf("not an RSA private key")
			}
		}
	default:
		return nil, fmt.Errorf("unsupported PEM type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewHybridCodec(priv, version)
}

// GenerateHybridCodec creates a codec with a fresh in-memory key. Clients must
// fetch the public key from each challenge since it changes on restart.
func GenerateHybridCodec(bits int) (*HybridCodec, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewHybridCodec(priv, 1)
}

func (c *HybridCodec) PublicKey() string { return c.pubPEM }
func (c *HybridCodec) KeyVersion() int   { return c.version }

func (c *HybridCodec) DecryptHybrid(env Envelope) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(env.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryptedKey: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != gcmNonceSize {
		return nil, fmt.Errorf("invalid iv")
	}
	body, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil || len(tag) != gcmTagSize {
		return nil, fmt.Errorf("invalid authTag")
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, c.priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap session key: %w", err)
	}
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("session key must be %d bytes", aesKeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// EncryptHybrid builds an Envelope the way a client does. Used by tooling
// and tests.
func EncryptHybrid(pub *rsa.PublicKey, keyType string, plaintext []byte) (Envelope, error) {
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return Envelope{}, fmt.Errorf("generate session key: %w", err)
	}
	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("generate iv: %w", err)
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap session key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, err
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	body, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return Envelope{
		KeyType:      keyType,
		EncryptedKey: base64.StdEncoding.EncodeToString(wrapped),
		IV:           base64.StdEncoding.EncodeToString(iv),
		Ciphertext:   base64.StdEncoding.EncodeToString(body),
		AuthTag:      base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// RSAPublicKey exposes the codec's public key for EncryptHybrid.
func (c *HybridCodec) RSAPublicKey() *rsa.PublicKey { return &c.priv.PublicKey }
