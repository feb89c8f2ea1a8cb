package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
)

// taskController triggers, cancels and polls remote tasks. It keeps no state
// between calls, so one instance can serve concurrent callers.
type taskController struct {
	remote ports.RemoteCaller
	logger *logger.Logger
}

func NewTaskController(remote ports.RemoteCaller, log *logger.Logger) ports.TaskController {
	if log == nil {
		log = logger.NewNop()
	}
	return &taskController{remote: remote, logger: log}
}

func (c *taskController) RunTask(ctx context.Context, taskType domain.TaskType) domain.CallResult {
	return c.call(ctx, domain.RequestRun, taskType)
}

func (c *taskController) CancelTask(ctx context.Context, taskType domain.TaskType) domain.CallResult {
	return c.call(ctx, domain.RequestCancel, taskType)
}

func (c *taskController) GetTaskDetail(ctx context.Context, taskType domain.TaskType) domain.CallResult {
	return c.call(ctx, domain.RequestDetail, taskType)
}

func (c *taskController) Exec(ctx context.Context, taskType domain.TaskType) domain.ExecResult {
	return c.commandThenDetail(ctx, taskType, c.RunTask)
}

func (c *taskController) Cancel(ctx context.Context, taskType domain.TaskType) domain.ExecResult {
	return c.commandThenDetail(ctx, taskType, c.CancelTask)
}

// commandThenDetail issues the command and, only if it succeeded, fetches
// the task detail the command itself does not return.
func (c *taskController) commandThenDetail(
	ctx context.Context,
	taskType domain.TaskType,
	command func(context.Context, domain.TaskType) domain.CallResult,
) domain.ExecResult {
	cmd := command(ctx, taskType)
	if cmd.Failed() {
		return domain.Failed(cmd.ErrMsg)
	}

	detail := c.GetTaskDetail(ctx, taskType)
	if detail.Failed() {
		return domain.Failed(detail.ErrMsg)
	}

	var out domain.TaskDetail
	if err := json.Unmarshal(detail.Result, &out); err != nil {
		c.logger.Warnw("task_detail_decode_failed", "type", taskType, "error", err)
		return domain.Failed(fmt.Sprintf("decode task detail: %v", err))
	}
	out.Raw = detail.Result
	return domain.Succeeded(out)
}

func (c *taskController) call(ctx context.Context, kind domain.RequestKind, taskType domain.TaskType) domain.CallResult {
	c.logger.Debugw("task_call_request", "kind", kind, "type", taskType)
	raw, err := c.remote.Call(ctx, kind, domain.TaskRequest{Type: taskType})
	if err != nil {
		c.logger.Warnw("task_call_failed", "kind", kind, "type", taskType, "error", err)
		return domain.CallFailed(err.Error())
	}
	c.logger.Debugw("task_call_ok", "kind", kind, "type", taskType, "resp_bytes", len(raw))
	return domain.CallSucceeded(raw)
}
