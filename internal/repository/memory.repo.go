package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

// MemoryStore implements all three repositories in process. It backs tests
// and STORE_DRIVER=memory; the mutex gives the same single-winner guarantee
// as the conditional updates in postgres.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
	templates  map[string]domain.FaceTemplate
	events     []domain.RecognitionEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]domain.Challenge),
		templates:  make(map[string]domain.FaceTemplate),
	}
}

func (m *MemoryStore) Challenges() ChallengeRepository { return memChallenges{m} }
func (m *MemoryStore) Templates() TemplateRepository   { return memTemplates{m} }
func (m *MemoryStore) Events() EventRepository         { return memEvents{m} }

type memChallenges struct{ m *MemoryStore }

func (r memChallenges) Create(_ context.Context, c *domain.Challenge) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *c
	cp.LivenessActions = append([]string(nil), c.LivenessActions...)
	r.m.challenges[c.ID] = cp
	return nil
}

func (r memChallenges) GetForUser(_ context.Context, userID, challengeID string, action domain.Action) (*domain.Challenge, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.challenges[challengeID]
	if !ok || c.UserID != userID || c.Action != action {
		return nil, xerrors.ErrChallengeNotFound
	}
	return &c, nil
}

func (r memChallenges) MarkUsed(_ context.Context, challengeID string, usedAt time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.challenges[challengeID]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	c.UsedAt = &usedAt
	c.Attempts++
	r.m.challenges[challengeID] = c
	return true, nil
}

type memTemplates struct{ m *MemoryStore }

func (r memTemplates) GetByUserID(_ context.Context, userID string) (*domain.FaceTemplate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.templates[userID]
	if !ok {
		return nil, xerrors.ErrTemplateNotFound
	}
	return &t, nil
}

func (r memTemplates) Insert(_ context.Context, t *domain.FaceTemplate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, exists := r.m.templates[t.UserID]; exists {
		return xerrors.ErrTemplateConflict
	}
	r.m.templates[t.UserID] = *t
	return nil
}

func (r memTemplates) UpdateVersioned(_ context.Context, t *domain.FaceTemplate, expectedVersion int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.templates[t.UserID]
	if !ok || cur.Version != expectedVersion {
		return xerrors.ErrTemplateConflict
	}
	next := *t
	next.CreatedAt = cur.CreatedAt
	r.m.templates[t.UserID] = next
	return nil
}

func (r memTemplates) Delete(_ context.Context, userID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.templates[userID]
	delete(r.m.templates, userID)
	return ok, nil
}

type memEvents struct{ m *MemoryStore }

func (r memEvents) Create(_ context.Context, e *domain.RecognitionEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.events = append(r.m.events, *e)
	return nil
}

func (r memEvents) FailureStats(_ context.Context, userID string, since time.Time) (int, *time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var (
		count int
		last  *time.Time
	)
	for i := range r.m.events {
		e := &r.m.events[i]
		if e.UserID != userID || !e.IsFailure() || e.CreatedAt.Before(since) {
			continue
		}
		count++
		if last == nil || e.CreatedAt.After(*last) {
			t := e.CreatedAt
			last = &t
		}
	}
	return count, last, nil
}

func (r memEvents) ConsumeVerificationToken(_ context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := len(r.m.events) - 1; i >= 0; i-- {
		e := &r.m.events[i]
		if e.UserID != userID || e.VerificationTokenHash == nil || *e.VerificationTokenHash != tokenHash {
			continue
		}
		if e.VerificationUsedAt != nil || e.VerificationExpiresAt == nil || !e.VerificationExpiresAt.After(now) {
			continue
		}
		used := now
		e.VerificationUsedAt = &used
		return true, nil
	}
	return false, nil
}

func (r memEvents) ListByUser(_ context.Context, userID string, limit int) ([]*domain.RecognitionEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.RecognitionEvent
	// newest insert first so events sharing a timestamp stay newest-first
	for i := len(r.m.events) - 1; i >= 0; i-- {
		if r.m.events[i].UserID == userID {
			e := r.m.events[i]
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
