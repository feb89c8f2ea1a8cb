package db

import (
	"context"
	"errors"
	"time"

	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRunRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRunRepository(db *gorm.DB, log *logger.Logger) ports.TaskRunRepository {
	return &taskRunRepository{db: db, log: log}
}

func (r *taskRunRepository) Create(ctx context.Context, run *domain.TaskRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		r.log.Errorw("task_run_repo_create_failed", "type", run.Type, "error", err)
		return err
	}
	r.log.Infow("task_run_repo_create_ok", "id", run.ID, "type", run.Type)
	return nil
}

func (r *taskRunRepository) Update(ctx context.Context, run *domain.TaskRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		r.log.Errorw("task_run_repo_update_failed", "id", run.ID, "error", err)
		return err
	}
	r.log.Infow("task_run_repo_update_ok", "id", run.ID, "status", run.Status)
	return nil
}

func (r *taskRunRepository) GetLatestByType(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error) {
	var run domain.TaskRun
	err := r.db.WithContext(ctx).
		Where("type = ?", taskType).
		Order("created_at desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTaskRunNotFound
	}
	if err != nil {
		r.log.Errorw("task_run_repo_get_latest_failed", "type", taskType, "error", err)
		return nil, err
	}
	return &run, nil
}

func (r *taskRunRepository) ListByType(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.TaskRun, error) {
	var runs []domain.TaskRun
	err := r.db.WithContext(ctx).
		Where("type = ?", taskType).
		Order("created_at desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		r.log.Errorw("task_run_repo_list_failed", "type", taskType, "error", err)
		return nil, err
	}
	r.log.Infow("task_run_repo_list_ok", "type", taskType, "count", len(runs))
	return runs, nil
}

// FailRunning marks every run still RUNNING as FAILED. Called at startup,
// when no run can actually be alive.
func (r *taskRunRepository) FailRunning(ctx context.Context, reason string) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.TaskRun{}).
		Where("status = ?", domain.TaskStatusRunning).
		Updates(map[string]interface{}{
			"status":      domain.TaskStatusFailed,
			"error":       reason,
			"message":     "Task failed",
			"finished_at": now,
		})
	if res.Error != nil {
		r.log.Errorw("task_run_repo_fail_running_failed", "error", res.Error)
		return 0, res.Error
	}
	r.log.Infow("task_run_repo_fail_running_ok", "count", res.RowsAffected)
	return res.RowsAffected, nil
}
