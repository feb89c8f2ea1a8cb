package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/core/services"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"github.com/netly/taskctl/internal/transport/http/dto"
)

// errInvalidRequest marks payloads rejected before reaching the service.
var errInvalidRequest = errors.New("invalid request")

type TaskHandler struct {
	service    ports.TaskService
	logger     *logger.Logger
	cancelWait time.Duration
}

func NewTaskHandler(service ports.TaskService, logger *logger.Logger, cancelWait time.Duration) *TaskHandler {
	if cancelWait <= 0 {
		cancelWait = 10 * time.Second
	}
	return &TaskHandler{service: service, logger: logger, cancelWait: cancelWait}
}

func (h *TaskHandler) RunTask(c *fiber.Ctx) error {
	return h.handle(c, domain.RequestRun, fiber.StatusAccepted)
}

func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	return h.handle(c, domain.RequestCancel, fiber.StatusOK)
}

func (h *TaskHandler) GetTaskDetail(c *fiber.Ctx) error {
	return h.handle(c, domain.RequestDetail, fiber.StatusOK)
}

func (h *TaskHandler) GetTaskTypes(c *fiber.Ctx) error {
	return c.JSON(dto.TaskTypesResponse{Types: h.service.Types()})
}

func (h *TaskHandler) GetTaskHistory(c *fiber.Ctx) error {
	req := dto.TaskRequest{Type: c.Params("type")}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid limit"})
		}
		limit = n
	}

	runs, err := h.service.History(c.UserContext(), req.TaskType(), limit)
	if err != nil {
		return h.fail(c, "task_history", req.TaskType(), err)
	}
	return c.JSON(dto.TaskRunsToResponse(runs))
}

func (h *TaskHandler) handle(c *fiber.Ctx, kind domain.RequestKind, okStatus int) error {
	var req dto.TaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_body_parse_failed", "kind", kind, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	h.logger.Infow("task_request", "kind", kind, "type", req.Type)
	out, err := h.Dispatch(c.UserContext(), kind, req)
	if err != nil {
		return h.fail(c, string(kind), req.TaskType(), err)
	}
	return c.Status(okStatus).JSON(out)
}

// Dispatch executes one request kind against the task service. Shared by
// the HTTP routes and the websocket endpoint.
func (h *TaskHandler) Dispatch(ctx context.Context, kind domain.RequestKind, req dto.TaskRequest) (any, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", errInvalidRequest, errs[0])
	}
	taskType := req.TaskType()

	switch kind {
	case domain.RequestRun:
		run, err := h.service.Run(ctx, taskType)
		if err != nil {
			return nil, err
		}
		return dto.RunAccepted(run), nil
	case domain.RequestCancel:
		ctx, cancel := context.WithTimeout(ctx, h.cancelWait)
		defer cancel()
		run, err := h.service.Cancel(ctx, taskType)
		if err != nil {
			return nil, err
		}
		return dto.RunAccepted(run), nil
	case domain.RequestDetail:
		return h.service.Detail(ctx, taskType)
	default:
		return nil, fmt.Errorf("%w: unknown request kind %q", errInvalidRequest, kind)
	}
}

func (h *TaskHandler) fail(c *fiber.Ctx, op string, taskType domain.TaskType, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Errorw("task_request_failed", "op", op, "type", taskType, "error", err)
	} else {
		h.logger.Warnw("task_request_rejected", "op", op, "type", taskType, "status", status, "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest), errors.Is(err, services.ErrTaskInvalidType):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrTaskUnknownType):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrTaskAlreadyRunning), errors.Is(err, services.ErrTaskNotRunning):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
