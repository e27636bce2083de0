package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/config"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/id"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

const (
	challengeIDPrefix = "bch"
	nonceBytes        = 32
	enrollActionCount = 2
)

type ChallengeService struct {
	repo    repository.ChallengeRepository
	ttl     time.Duration
	enroll  config.LivenessOverride
	verify  config.LivenessOverride
	now     func() time.Time
	entropy io.Reader
}

func NewChallengeService(repo repository.ChallengeRepository, cfg config.BiometricsConfig) *ChallengeService {
	return &ChallengeService{
		repo:    repo,
		ttl:     cfg.ChallengeTTL,
		enroll:  cfg.EnrollLiveness,
		verify:  cfg.VerifyLiveness,
		now:     time.Now,
		entropy: rand.Reader,
	}
}

// WithClock replaces the time source. Tests only.
func (s *ChallengeService) WithClock(now func() time.Time) *ChallengeService {
	s.now = now
	return s
}

// Issue stores a fresh challenge for userID. Lockout is checked by the caller.
func (s *ChallengeService) Issue(ctx context.Context, userID string, action domain.Action, ip, userAgent string) (*domain.Challenge, error) {
	if !action.Valid() {
		return nil, xerrors.ErrInvalidAction
	}

	challengeID, err := id.GenerateULID(challengeIDPrefix)
	if err != nil {
		return nil, err
	}
	nonce, err := id.RandomTokenFrom(s.entropy, nonceBytes)
	if err != nil {
		return nil, err
	}
	actions, err := s.SelectLiveness(action)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &domain.Challenge{
		ID:              challengeID,
		UserID:          userID,
		Nonce:           nonce,
		Action:          action,
		LivenessActions: actions,
		ExpiresAt:       now.Add(s.ttl),
		IPAddress:       ip,
		UserAgent:       userAgent,
		CreatedAt:       now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return c, nil
}

// SelectLiveness picks the prompted actions for a new challenge.
func (s *ChallengeService) SelectLiveness(action domain.Action) ([]string, error) {
	switch action {
	case domain.ActionVerify:
		if s.verify.Set {
			return append([]string{}, s.verify.Actions...), nil
		}
		return []string{domain.LivenessBlink}, nil
	case domain.ActionEnroll:
		if s.enroll.Set {
			return append([]string{}, s.enroll.Actions...), nil
		}
		return pickDistinct(s.entropy, domain.LivenessCandidates, enrollActionCount)
	default:
		return nil, xerrors.ErrInvalidAction
	}
}

// pickDistinct draws uniformly from candidates until n distinct values are held.
func pickDistinct(r io.Reader, candidates []string, n int) ([]string, error) {
	if n > len(candidates) {
		n = len(candidates)
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	upper := big.NewInt(int64(len(candidates)))
	for len(out) < n {
		idx, err := rand.Int(r, upper)
		if err != nil {
			return nil, fmt.Errorf("select liveness action: %w", err)
		}
		c := candidates[idx.Int64()]
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Consume validates and burns a challenge. Errors are checked in order:
// not found, already used, expired, nonce mismatch.
func (s *ChallengeService) Consume(ctx context.Context, userID, challengeID, nonce string, action domain.Action) (*domain.Challenge, error) {
	c, err := s.repo.GetForUser(ctx, userID, challengeID, action)
	if err != nil {
		return nil, err
	}
	if c.UsedAt != nil {
		return nil, xerrors.ErrChallengeUsed
	}
	now := s.now().UTC()
	if !now.Before(c.ExpiresAt) {
		return nil, xerrors.ErrChallengeExpired
	}
	if subtle.ConstantTimeCompare([]byte(nonce), []byte(c.Nonce)) != 1 {
		return nil, xerrors.ErrInvalidNonce
	}

	ok, err := s.repo.MarkUsed(ctx, c.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark challenge used: %w", err)
	}
	if !ok {
		return nil, xerrors.ErrChallengeUsed
	}
	c.UsedAt = &now
	c.Attempts++
	return c, nil
}
