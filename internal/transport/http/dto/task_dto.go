package dto

import (
	"time"

	"github.com/netly/taskctl/internal/domain"
)

type TaskRequest struct {
	Type string `json:"type"`
}

func (r *TaskRequest) Validate() []string {
	var errors []string

	if r.Type == "" {
		errors = append(errors, "type is required")
	} else if !r.TaskType().Valid() {
		errors = append(errors, "type must be 1-64 letters, digits, '_', '-' or '.'")
	}

	return errors
}

func (r *TaskRequest) TaskType() domain.TaskType {
	return domain.TaskType(r.Type)
}

type TaskRunResponse struct {
	ID         string            `json:"id"`
	Type       domain.TaskType   `json:"type"`
	Status     domain.TaskStatus `json:"status"`
	Message    string            `json:"message"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

func TaskRunToResponse(run *domain.TaskRun) TaskRunResponse {
	return TaskRunResponse{
		ID:         run.ID,
		Type:       run.Type,
		Status:     run.Status,
		Message:    run.Message,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func TaskRunsToResponse(runs []domain.TaskRun) []TaskRunResponse {
	responses := make([]TaskRunResponse, len(runs))
	for i := range runs {
		responses[i] = TaskRunToResponse(&runs[i])
	}
	return responses
}

func RunAccepted(run *domain.TaskRun) domain.RunAccepted {
	return domain.RunAccepted{Accepted: true, RunID: run.ID, Status: run.Status}
}

type TaskTypesResponse struct {
	Types []domain.TaskType `json:"types"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
