package repository

import (
	"context"
	"errors"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TemplateRepo struct {
	db *pgxpool.Pool
}

func NewTemplateRepo(db *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{db: db}
}

func (r *TemplateRepo) GetByUserID(ctx context.Context, userID string) (*domain.FaceTemplate, error) {
	var t domain.FaceTemplate
	err := r.db.QueryRow(ctx, `
		SELECT user_id, embeddings_enc, centroid_enc, embedding_dim, template_count,
		       last_confidence, version, created_at, updated_at
		FROM biometric_templates
		WHERE user_id=$1
	`, userID).Scan(
		&t.UserID, &t.EncryptedEmbeddings, &t.EncryptedCentroid, &t.EmbeddingDim, &t.TemplateCount,
		&t.LastConfidence, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Insert creates the first template for a user. A concurrent first
// enrolment surfaces as ErrTemplateConflict.
func (r *TemplateRepo) Insert(ctx context.Context, t *domain.FaceTemplate) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO biometric_templates
			(user_id, embeddings_enc, centroid_enc, embedding_dim, template_count, last_confidence, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.UserID, t.EncryptedEmbeddings, t.EncryptedCentroid, t.EmbeddingDim, t.TemplateCount,
		t.LastConfidence, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == "23505" {
			return xerrors.ErrTemplateConflict
		}
		return err
	}
	return nil
}

func (r *TemplateRepo) UpdateVersioned(ctx context.Context, t *domain.FaceTemplate, expectedVersion int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE biometric_templates
		SET embeddings_enc=$2, centroid_enc=$3, embedding_dim=$4, template_count=$5,
		    last_confidence=$6, version=$7, updated_at=$8
		WHERE user_id=$1 AND version=$9
	`, t.UserID, t.EncryptedEmbeddings, t.EncryptedCentroid, t.EmbeddingDim, t.TemplateCount,
		t.LastConfidence, t.Version, t.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrTemplateConflict
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM biometric_templates WHERE user_id=$1`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
