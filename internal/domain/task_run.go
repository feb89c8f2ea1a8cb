package domain

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// TaskRun is one execution of a task type, persisted for history.
type TaskRun struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Type       TaskType       `gorm:"size:64;not null;index:idx_task_runs_type_created" json:"type"`
	Status     TaskStatus     `gorm:"size:16;not null" json:"status"`
	Message    string         `gorm:"type:text" json:"message"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Output     string         `gorm:"type:text" json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_task_runs_type_created" json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *TaskRun) Detail() TaskDetail {
	startedAt := r.StartedAt
	updatedAt := r.UpdatedAt
	return TaskDetail{
		Type:       r.Type,
		Status:     r.Status,
		RunID:      r.ID,
		Message:    r.Message,
		Error:      r.Error,
		Output:     r.Output,
		StartedAt:  &startedAt,
		FinishedAt: r.FinishedAt,
		UpdatedAt:  &updatedAt,
	}
}

// IdleDetail is reported for task types that have never run.
func IdleDetail(taskType TaskType) TaskDetail {
	return TaskDetail{
		Type:    taskType,
		Status:  TaskStatusIdle,
		Message: "Task has not run yet",
	}
}

// ==================== Definitions ====================

type RunnerKind string

const (
	RunnerShell RunnerKind = "shell"
	RunnerSSH   RunnerKind = "ssh"
	RunnerStats RunnerKind = "stats"
)

func (k RunnerKind) Valid() bool {
	return k == RunnerShell || k == RunnerSSH || k == RunnerStats
}

// TaskDefinition describes how the remote side executes a task type.
type TaskDefinition struct {
	Type       TaskType
	Runner     RunnerKind
	Command    string
	Timeout    time.Duration
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
}

var ErrTaskRunNotFound = errors.New("task run: not found")
