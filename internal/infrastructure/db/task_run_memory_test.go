package db

import (
	"context"
	"testing"
	"time"

	"github.com/netly/taskctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTaskRunRepository_LatestAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTaskRunRepository()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &domain.TaskRun{
			ID: id, Type: "BUILD", Status: domain.TaskStatusSucceeded, StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.TaskRun{ID: "x", Type: "DEPLOY", StartedAt: base}))

	latest, err := repo.GetLatestByType(ctx, "BUILD")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	runs, err := repo.ListByType(ctx, "BUILD", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	_, err = repo.GetLatestByType(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrTaskRunNotFound)
}

func TestMemoryTaskRunRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTaskRunRepository()

	err := repo.Update(ctx, &domain.TaskRun{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrTaskRunNotFound)

	run := &domain.TaskRun{ID: "a", Type: "BUILD", Status: domain.TaskStatusRunning, StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, run))
	run.Status = domain.TaskStatusSucceeded
	require.NoError(t, repo.Update(ctx, run))

	latest, err := repo.GetLatestByType(ctx, "BUILD")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSucceeded, latest.Status)
}

func TestMemoryTaskRunRepository_FailRunning(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTaskRunRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, &domain.TaskRun{ID: "a", Type: "BUILD", Status: domain.TaskStatusRunning, StartedAt: now}))
	require.NoError(t, repo.Create(ctx, &domain.TaskRun{ID: "b", Type: "DEPLOY", Status: domain.TaskStatusSucceeded, StartedAt: now}))

	n, err := repo.FailRunning(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	run, err := repo.GetLatestByType(ctx, "BUILD")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, run.Status)
	assert.Equal(t, "interrupted", run.Error)
	assert.NotNil(t, run.FinishedAt)
}
