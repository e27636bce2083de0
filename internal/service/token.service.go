package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/id"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const verificationTokenBytes = 32

var tokensConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "biometrics_tokens_consumed_total",
	Help: "Verification token redemption attempts by result.",
}, []string{"result"})

// IssuedToken is the raw token handed to the client once, plus what gets stored.
type IssuedToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// TokenService mints and redeems single-use face verification tokens.
// Only the keyed digest of a token is ever stored.
type TokenService struct {
	events  repository.EventRepository
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

func NewTokenService(events repository.EventRepository, secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		events:  events,
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		entropy: rand.Reader,
	}
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) Configured() bool { return len(s.secret) > 0 }

// Hash is hex(HMAC-SHA256(secret, token)).
func (s *TokenService) Hash(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue creates a token. It refuses when no secret is configured.
func (s *TokenService) Issue() (*IssuedToken, error) {
	if !s.Configured() {
		return nil, xerrors.ErrSecretNotConfigured
	}
	raw, err := id.RandomTokenFrom(s.entropy, verificationTokenBytes)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{
		Raw:       raw,
		Hash:      s.Hash(raw),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}, nil
}

// Consume redeems token for userID exactly once.
func (s *TokenService) Consume(ctx context.Context, userID, token string) error {
	if !s.Configured() {
		tokensConsumed.WithLabelValues("unavailable").Inc()
		return xerrors.ErrVerificationUnavailable
	}
	token = strings.TrimSpace(token)
	if token == "" {
		tokensConsumed.WithLabelValues("missing").Inc()
		return xerrors.ErrVerificationRequired
	}

	ok, err := s.events.ConsumeVerificationToken(ctx, userID, s.Hash(token), s.now().UTC())
	if err != nil {
		tokensConsumed.WithLabelValues("error").Inc()
		return fmt.Errorf("consume verification token: %w", err)
	}
	if !ok {
		tokensConsumed.WithLabelValues("rejected").Inc()
		return xerrors.ErrVerificationInvalid
	}
	tokensConsumed.WithLabelValues("accepted").Inc()
	return nil
}
