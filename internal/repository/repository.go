package repository

import (
	"context"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
)

// ChallengeRepository persists issued challenges. MarkUsed must be a
// conditional write: only one caller may ever observe true for an id.
type ChallengeRepository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	GetForUser(ctx context.Context, userID, challengeID string, action domain.Action) (*domain.Challenge, error)
	MarkUsed(ctx context.Context, challengeID string, usedAt time.Time) (bool, error)
}

// TemplateRepository stores one face template per user. Writes after the
// first go through UpdateVersioned and fail with xerrors.ErrTemplateConflict
// when the stored version moved.
type TemplateRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.FaceTemplate, error)
	Insert(ctx context.Context, t *domain.FaceTemplate) error
	UpdateVersioned(ctx context.Context, t *domain.FaceTemplate, expectedVersion int64) error
	Delete(ctx context.Context, userID string) (bool, error)
}

type EventRepository interface {
	Create(ctx context.Context, e *domain.RecognitionEvent) error
	// FailureStats counts FAILURE and SUSPICIOUS events since the given time
	// and returns the newest one's timestamp.
	FailureStats(ctx context.Context, userID string, since time.Time) (int, *time.Time, error)
	// ConsumeVerificationToken marks the matching unexpired, unused token as
	// used. It returns false when no such token exists.
	ConsumeVerificationToken(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.RecognitionEvent, error)
}
