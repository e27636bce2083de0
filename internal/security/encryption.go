package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const templateKeyInfo = "biometrics-template-v1"

// Encryption seals face templates at rest with AES-256-GCM.
// Ciphertexts are base64(nonce || sealed) and bound to the owning user id
// through the GCM additional data, so a row copied to another user fails to open.
type Encryption struct {
	key []byte
}

// NewEncryption derives the at-rest key from masterSecret with HKDF-SHA256.
// masterSecret may be base64 or raw text; it must carry at least 32 bytes.
func NewEncryption(masterSecret string) (*Encryption, error) {
	secret := []byte(masterSecret)
	if decoded, err := base64.StdEncoding.DecodeString(masterSecret); err == nil && len(decoded) > 0 {
		secret = decoded
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("template key too short: need at least 32 bytes, got %d", len(secret))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(templateKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive template key: %w", err)
	}

	return &Encryption{key: key}, nil
}

func (e *Encryption) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptBytes returns base64(nonce || ciphertext) with aad authenticated.
func (e *Encryption) EncryptBytes(data, aad []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data cannot be empty")
	}
	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, aad)), nil
}

func (e *Encryption) DecryptBytes(ciphertext string, aad []byte) ([]byte, error) {
	if ciphertext == "" {
		return nil, fmt.Errorf("ciphertext cannot be empty")
	}
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(decoded) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := decoded[:nonceSize], decoded[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// EncryptJSON marshals v and seals it for userID.
func (e *Encryption) EncryptJSON(userID string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal template: %w", err)
	}
	return e.EncryptBytes(raw, []byte(userID))
}

// DecryptJSON opens a value sealed by EncryptJSON into out.
func (e *Encryption) DecryptJSON(userID, ciphertext string, out any) error {
	raw, err := e.DecryptBytes(ciphertext, []byte(userID))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal template: %w", err)
	}
	return nil
}

// GenerateMasterKey returns a random base64 32-byte secret suitable for
// BIOMETRICS_TEMPLATE_KEY.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
