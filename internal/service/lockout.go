package service

import (
	"context"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/config"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

// LockoutPolicy blocks an identity after too many failed or suspicious
// attempts inside a sliding window.
type LockoutPolicy struct {
	events      repository.EventRepository
	window      time.Duration
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

func NewLockoutPolicy(events repository.EventRepository, cfg config.BiometricsConfig) *LockoutPolicy {
	return &LockoutPolicy{
		events:      events,
		window:      cfg.AttemptWindow,
		maxAttempts: cfg.MaxAttempts,
		duration:    cfg.LockoutDuration,
		now:         time.Now,
	}
}

func (p *LockoutPolicy) WithClock(now func() time.Time) *LockoutPolicy {
	p.now = now
	return p
}

func (p *LockoutPolicy) Enabled() bool {
	return p.maxAttempts > 0 && p.duration > 0
}

// LockedUntil returns the lockout expiry when userID is currently locked, or nil.
func (p *LockoutPolicy) LockedUntil(ctx context.Context, userID string) (*time.Time, error) {
	if !p.Enabled() {
		return nil, nil
	}
	now := p.now().UTC()
	count, last, err := p.events.FailureStats(ctx, userID, now.Add(-p.window))
	if err != nil {
		return nil, fmt.Errorf("load failure stats: %w", err)
	}
	if count < p.maxAttempts {
		return nil, nil
	}

	until := now.Add(p.duration)
	if last != nil {
		until = last.UTC().Add(p.duration)
	}
	if !until.After(now) {
		return nil, nil
	}
	return &until, nil
}

// Check returns a RateLimited error while userID is locked out.
func (p *LockoutPolicy) Check(ctx context.Context, userID string) error {
	until, err := p.LockedUntil(ctx, userID)
	if err != nil {
		return err
	}
	if until != nil {
		return xerrors.RateLimited("Too many failed attempts. Try again after " + until.Format(time.RFC3339))
	}
	return nil
}
