package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(t *testing.T, repo *repository.ConversionRunRepository, status domain.ConversionRunStatus) *domain.ConversionRun {
	t.Helper()
	run := domain.NewConversionRun(uuid.New(), uuid.New())
	run.Status = status
	require.NoError(t, repo.Create(context.Background(), run))
	return run
}

func TestConversionRunRepository_ListUnfinishedHonoursLease(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewConversionRunRepository(db)
	ctx := context.Background()

	partial := newRun(t, repo, domain.ConversionRunPartial)
	live := newRun(t, repo, domain.ConversionRunInProgress)
	stale := newRun(t, repo, domain.ConversionRunInProgress)
	newRun(t, repo, domain.ConversionRunDead)
	newRun(t, repo, domain.ConversionRunCompleted)

	require.NoError(t, db.Model(&domain.ConversionRun{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	runs, err := repo.ListUnfinished(ctx, time.Now().Add(-10*time.Minute), 10)
	require.NoError(t, err)

	ids := make([]string, len(runs))
	for i := range runs {
		ids[i] = runs[i].ID
	}
	assert.ElementsMatch(t, []string{partial.ID, stale.ID}, ids)
	assert.NotContains(t, ids, live.ID)
}

func TestConversionRunRepository_ClaimIsExclusive(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewConversionRunRepository(db)
	ctx := context.Background()
	staleBefore := time.Now().Add(-10 * time.Minute)

	run := newRun(t, repo, domain.ConversionRunPartial)
	first, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)

	won, err := repo.Claim(ctx, first, staleBefore, domain.ConversionRunPartial)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, domain.ConversionRunInProgress, first.Status)

	won, err = repo.Claim(ctx, second, staleBefore, domain.ConversionRunPartial)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, domain.ConversionRunPartial, second.Status)

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionRunInProgress, stored.Status)

	t.Run("dead runs need an explicit from state", func(t *testing.T) {
		dead := newRun(t, repo, domain.ConversionRunDead)
		won, err := repo.Claim(ctx, dead, staleBefore, domain.ConversionRunPartial)
		require.NoError(t, err)
		assert.False(t, won)

		won, err = repo.Claim(ctx, dead, staleBefore, domain.ConversionRunPartial, domain.ConversionRunDead)
		require.NoError(t, err)
		assert.True(t, won)
	})
}
