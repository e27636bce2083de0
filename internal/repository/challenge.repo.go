package repository

import (
	"context"
	"errors"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChallengeRepo struct {
	db *pgxpool.Pool
}

func NewChallengeRepo(db *pgxpool.Pool) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

func (r *ChallengeRepo) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO biometric_challenges
			(id, user_id, nonce, action, liveness_actions, expires_at, attempts, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10)
	`, c.ID, c.UserID, c.Nonce, c.Action, c.LivenessActions, c.ExpiresAt, c.Attempts, c.IPAddress, c.UserAgent, c.CreatedAt)
	return err
}

func (r *ChallengeRepo) GetForUser(ctx context.Context, userID, challengeID string, action domain.Action) (*domain.Challenge, error) {
	var (
		c      domain.Challenge
		ip, ua *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, nonce, action, liveness_actions, expires_at, used_at, attempts, ip_address, user_agent, created_at
		FROM biometric_challenges
		WHERE id=$1 AND user_id=$2 AND action=$3
	`, challengeID, userID, action).Scan(
		&c.ID, &c.UserID, &c.Nonce, &c.Action, &c.LivenessActions, &c.ExpiresAt, &c.UsedAt,
		&c.Attempts, &ip, &ua, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrChallengeNotFound
		}
		return nil, err
	}
	if ip != nil {
		c.IPAddress = *ip
	}
	if ua != nil {
		c.UserAgent = *ua
	}
	return &c, nil
}

// MarkUsed stamps used_at and bumps attempts only if the challenge is still unused.
func (r *ChallengeRepo) MarkUsed(ctx context.Context, challengeID string, usedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE biometric_challenges
		SET used_at=$2, attempts=attempts+1
		WHERE id=$1 AND used_at IS NULL
	`, challengeID, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
