package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/domain"
)

// MemoryTaskRunRepository keeps runs in process memory. Used when no
// database is configured and in tests.
type MemoryTaskRunRepository struct {
	mu   sync.RWMutex
	runs map[string]domain.TaskRun
}

func NewMemoryTaskRunRepository() ports.TaskRunRepository {
	return &MemoryTaskRunRepository{runs: make(map[string]domain.TaskRun)}
}

func (r *MemoryTaskRunRepository) Create(ctx context.Context, run *domain.TaskRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = run.StartedAt
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *MemoryTaskRunRepository) Update(ctx context.Context, run *domain.TaskRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return domain.ErrTaskRunNotFound
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *MemoryTaskRunRepository) GetLatestByType(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error) {
	runs, _ := r.ListByType(ctx, taskType, 1)
	if len(runs) == 0 {
		return nil, domain.ErrTaskRunNotFound
	}
	return &runs[0], nil
}

func (r *MemoryTaskRunRepository) ListByType(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.TaskRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runs []domain.TaskRun
	for _, run := range r.runs {
		if run.Type == taskType {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *MemoryTaskRunRepository) FailRunning(ctx context.Context, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, run := range r.runs {
		if run.Status != domain.TaskStatusRunning {
			continue
		}
		run.Status = domain.TaskStatusFailed
		run.Error = reason
		run.Message = "Task failed"
		run.FinishedAt = &now
		run.UpdatedAt = now
		r.runs[id] = run
		n++
	}
	return n, nil
}
