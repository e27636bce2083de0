package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

// TemplateCipher seals template vectors for one user.
type TemplateCipher interface {
	EncryptJSON(userID string, v any) (string, error)
	DecryptJSON(userID, ciphertext string, out any) error
}

type TemplateService struct {
	repo     repository.TemplateRepository
	cipher   TemplateCipher
	capacity int
	now      func() time.Time
}

func NewTemplateService(repo repository.TemplateRepository, cipher TemplateCipher, maxTemplateCount int) *TemplateService {
	return &TemplateService{repo: repo, cipher: cipher, capacity: maxTemplateCount, now: time.Now}
}

func (s *TemplateService) WithClock(now func() time.Time) *TemplateService {
	s.now = now
	return s
}

// Load returns the decrypted template for scoring. A missing template is
// xerrors.ErrTemplateNotFound.
func (s *TemplateService) Load(ctx context.Context, userID string) (*domain.DecryptedTemplate, error) {
	t, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.decrypt(t)
}

func (s *TemplateService) Get(ctx context.Context, userID string) (*domain.FaceTemplate, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *TemplateService) decrypt(t *domain.FaceTemplate) (*domain.DecryptedTemplate, error) {
	dt := &domain.DecryptedTemplate{UserID: t.UserID, EmbeddingDim: t.EmbeddingDim, Version: t.Version}
	if err := s.cipher.DecryptJSON(t.UserID, t.EncryptedEmbeddings, &dt.Embeddings); err != nil {
		return nil, fmt.Errorf("decrypt embeddings: %w", err)
	}
	if err := s.cipher.DecryptJSON(t.UserID, t.EncryptedCentroid, &dt.Centroid); err != nil {
		return nil, fmt.Errorf("decrypt centroid: %w", err)
	}
	return dt, nil
}

// SaveEmbeddings folds an enrolment capture into the user's template,
// creating it on first enrolment.
func (s *TemplateService) SaveEmbeddings(ctx context.Context, userID string, embeddings [][]float64, dim int, confidence *float64) (*domain.FaceTemplate, error) {
	base, err := s.Load(ctx, userID)
	if err != nil && !errors.Is(err, xerrors.ErrTemplateNotFound) {
		return nil, err
	}
	return s.Append(ctx, userID, base, embeddings, dim, confidence)
}

// Append adds embeddings to base (nil means no template yet) and writes the
// result conditioned on base.Version. Only the newest capacity embeddings
// are retained and the centroid is recomputed over them.
func (s *TemplateService) Append(ctx context.Context, userID string, base *domain.DecryptedTemplate, embeddings [][]float64, dim int, confidence *float64) (*domain.FaceTemplate, error) {
	if len(embeddings) == 0 {
		return nil, xerrors.ErrNoEmbeddings
	}
	if dim <= 0 {
		return nil, xerrors.ErrDimensionMismatch
	}
	for _, e := range embeddings {
		if len(e) != dim {
			return nil, xerrors.ErrDimensionMismatch
		}
	}
	if base != nil && base.EmbeddingDim != dim {
		return nil, xerrors.ErrDimensionMismatch
	}

	list := NormalizeAll(embeddings)
	if base != nil {
		list = append(append([][]float64{}, base.Embeddings...), list...)
	}
	if s.capacity > 0 && len(list) > s.capacity {
		list = list[len(list)-s.capacity:]
	}
	centroid := Mean(list)

	encEmb, err := s.cipher.EncryptJSON(userID, list)
	if err != nil {
		return nil, fmt.Errorf("encrypt embeddings: %w", err)
	}
	encCentroid, err := s.cipher.EncryptJSON(userID, centroid)
	if err != nil {
		return nil, fmt.Errorf("encrypt centroid: %w", err)
	}

	now := s.now().UTC()
	t := &domain.FaceTemplate{
		UserID:              userID,
		EncryptedEmbeddings: encEmb,
		EncryptedCentroid:   encCentroid,
		EmbeddingDim:        dim,
		TemplateCount:       len(list),
		LastConfidence:      confidence,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if base == nil {
		t.Version = 1
		if err := s.repo.Insert(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}

	t.Version = base.Version + 1
	if err := s.repo.UpdateVersioned(ctx, t, base.Version); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Reset(ctx context.Context, userID string) (bool, error) {
	return s.repo.Delete(ctx, userID)
}
