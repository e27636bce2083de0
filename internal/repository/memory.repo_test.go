package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryChallenges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Challenges()

	require.NoError(t, repo.Create(ctx, &domain.Challenge{
		ID: "bch_1", UserID: "u1", Nonce: "n", Action: domain.ActionVerify, ExpiresAt: t0.Add(time.Minute),
	}))

	_, err := repo.GetForUser(ctx, "u2", "bch_1", domain.ActionVerify)
	assert.ErrorIs(t, err, xerrors.ErrChallengeNotFound)
	_, err = repo.GetForUser(ctx, "u1", "bch_1", domain.ActionEnroll)
	assert.ErrorIs(t, err, xerrors.ErrChallengeNotFound)

	c, err := repo.GetForUser(ctx, "u1", "bch_1", domain.ActionVerify)
	require.NoError(t, err)
	assert.Nil(t, c.UsedAt)
}

func TestMemoryChallenges_MarkUsedSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Challenges()
	require.NoError(t, repo.Create(ctx, &domain.Challenge{ID: "bch_1", UserID: "u1", Action: domain.ActionEnroll}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkUsed(ctx, "bch_1", t0)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	c, err := repo.GetForUser(ctx, "u1", "bch_1", domain.ActionEnroll)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Attempts)
	require.NotNil(t, c.UsedAt)
}

func TestMemoryTemplates_Versioning(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Templates()

	_, err := repo.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, xerrors.ErrTemplateNotFound)

	tpl := &domain.FaceTemplate{UserID: "u1", TemplateCount: 1, Version: 1, CreatedAt: t0}
	require.NoError(t, repo.Insert(ctx, tpl))
	assert.ErrorIs(t, repo.Insert(ctx, tpl), xerrors.ErrTemplateConflict)

	next := *tpl
	next.Version, next.TemplateCount = 2, 2
	require.NoError(t, repo.UpdateVersioned(ctx, &next, 1))

	stale := *tpl
	stale.Version = 2
	assert.ErrorIs(t, repo.UpdateVersioned(ctx, &stale, 1), xerrors.ErrTemplateConflict)

	got, err := repo.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 2, got.TemplateCount)

	deleted, err := repo.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryEvents_FailureStats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Events()

	add := func(user string, res domain.Result, at time.Time) {
		require.NoError(t, repo.Create(ctx, &domain.RecognitionEvent{ID: at.String() + user, UserID: user, Result: res, CreatedAt: at}))
	}
	add("u1", domain.ResultFailure, t0.Add(-20*time.Minute)) // outside window
	add("u1", domain.ResultFailure, t0.Add(-5*time.Minute))
	add("u1", domain.ResultSuspicious, t0.Add(-2*time.Minute))
	add("u1", domain.ResultSuccess, t0.Add(-1*time.Minute))
	add("u2", domain.ResultFailure, t0.Add(-1*time.Minute))

	count, last, err := repo.FailureStats(ctx, "u1", t0.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NotNil(t, last)
	assert.Equal(t, t0.Add(-2*time.Minute), *last)

	count, last, err = repo.FailureStats(ctx, "u3", t0.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Nil(t, last)
}

func TestMemoryEvents_ConsumeVerificationToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Events()

	hash := "abc"
	exp := t0.Add(2 * time.Minute)
	require.NoError(t, repo.Create(ctx, &domain.RecognitionEvent{
		ID: "e1", UserID: "u1", Result: domain.ResultSuccess,
		VerificationTokenHash: &hash, VerificationExpiresAt: &exp, CreatedAt: t0,
	}))

	ok, err := repo.ConsumeVerificationToken(ctx, "u2", hash, t0)
	require.NoError(t, err)
	assert.False(t, ok, "other identity must not redeem")

	ok, err = repo.ConsumeVerificationToken(ctx, "u1", hash, exp)
	require.NoError(t, err)
	assert.False(t, ok, "expiry is exclusive")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := repo.ConsumeVerificationToken(ctx, "u1", hash, t0.Add(time.Second)); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	events, err := repo.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].VerificationUsedAt)
}

func TestMemoryEvents_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Events()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &domain.RecognitionEvent{
			ID: string(rune('a' + i)), UserID: "u1", CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := repo.ListByUser(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e", events[0].ID)
	assert.Equal(t, "c", events[2].ID)
}

func TestMemoryEvents_ListByUserTiesNewestInsertFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Events()
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &domain.RecognitionEvent{ID: id, UserID: "u1", CreatedAt: t0}))
	}
	require.NoError(t, repo.Create(ctx, &domain.RecognitionEvent{ID: "older", UserID: "u1", CreatedAt: t0.Add(-time.Minute)}))

	events, err := repo.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"third", "second", "first", "older"}, ids)
}
