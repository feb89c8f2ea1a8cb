package ports

import (
	"context"
	"encoding/json"

	"github.com/netly/taskctl/internal/domain"
)

// RemoteCaller sends one request to the task server and returns its raw
// response payload, or an error when the call could not be completed.
type RemoteCaller interface {
	Call(ctx context.Context, kind domain.RequestKind, payload any) (json.RawMessage, error)
}

type TaskController interface {
	RunTask(ctx context.Context, taskType domain.TaskType) domain.CallResult
	CancelTask(ctx context.Context, taskType domain.TaskType) domain.CallResult
	GetTaskDetail(ctx context.Context, taskType domain.TaskType) domain.CallResult
	Exec(ctx context.Context, taskType domain.TaskType) domain.ExecResult
	Cancel(ctx context.Context, taskType domain.TaskType) domain.ExecResult
}

type TaskService interface {
	Run(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error)
	Cancel(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error)
	Detail(ctx context.Context, taskType domain.TaskType) (*domain.TaskDetail, error)
	History(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.TaskRun, error)
	Types() []domain.TaskType
	Recover(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Runner executes the work behind one task definition.
type Runner interface {
	Run(ctx context.Context) (string, error)
}

type TaskRunRepository interface {
	Create(ctx context.Context, run *domain.TaskRun) error
	Update(ctx context.Context, run *domain.TaskRun) error
	GetLatestByType(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error)
	ListByType(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.TaskRun, error)
	FailRunning(ctx context.Context, reason string) (int64, error)
}
