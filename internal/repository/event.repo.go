package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepo struct {
	db *pgxpool.Pool
}

func NewEventRepo(db *pgxpool.Pool) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Create(ctx context.Context, e *domain.RecognitionEvent) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO biometric_recognition_events
			(id, user_id, type, result, reason, score, threshold,
			 verification_token_hash, verification_expires_at, metadata, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),$13)
	`, e.ID, e.UserID, e.Type, e.Result, e.Reason, e.Score, e.Threshold,
		e.VerificationTokenHash, e.VerificationExpiresAt, meta, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

func (r *EventRepo) FailureStats(ctx context.Context, userID string, since time.Time) (int, *time.Time, error) {
	var (
		count int
		last  *time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), MAX(created_at)
		FROM biometric_recognition_events
		WHERE user_id=$1 AND result IN ('FAILURE','SUSPICIOUS') AND created_at >= $2
	`, userID, since).Scan(&count, &last)
	if err != nil {
		return 0, nil, err
	}
	return count, last, nil
}

// ConsumeVerificationToken locks the newest matching row and marks it used
// in one transaction. The used_at guard on the UPDATE keeps a second
// concurrent consumer from winning even without the row lock.
func (r *EventRepo) ConsumeVerificationToken(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM biometric_recognition_events
		WHERE user_id=$1 AND verification_token_hash=$2
		  AND verification_expires_at > $3 AND verification_used_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userID, tokenHash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE biometric_recognition_events
		SET verification_used_at=$2
		WHERE id=$1 AND verification_used_at IS NULL
	`, id, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *EventRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.RecognitionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, result, COALESCE(reason,''), score, threshold,
		       verification_expires_at, verification_used_at, metadata,
		       COALESCE(ip_address,''), COALESCE(user_agent,''), created_at
		FROM biometric_recognition_events
		WHERE user_id=$1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.RecognitionEvent
	for rows.Next() {
		var (
			e    domain.RecognitionEvent
			meta []byte
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Type, &e.Result, &e.Reason, &e.Score, &e.Threshold,
			&e.VerificationExpiresAt, &e.VerificationUsedAt, &meta,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
