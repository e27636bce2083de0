package id

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateULID returns prefix_<ulid>. Entropy is read straight from
// crypto/rand (no monotonic reader) so two ids minted in the same
// millisecond do not differ only by an increment.
func GenerateULID(prefix string) (string, error) {
	u, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return prefix + "_" + u.String(), nil
}

// GenerateEventID returns a random UUIDv4 string.
func GenerateEventID() string {
	return uuid.NewString()
}

// RandomTokenFrom returns n bytes from r encoded as unpadded base64url.
func RandomTokenFrom(r io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
