package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"github.com/netly/taskctl/internal/transport/http/dto"
)

// TaskWSHandler serves task requests as JSON frames on a websocket. Frames
// are answered in order, one at a time.
type TaskWSHandler struct {
	tasks  *TaskHandler
	logger *logger.Logger
}

func NewTaskWSHandler(tasks *TaskHandler, logger *logger.Logger) *TaskWSHandler {
	return &TaskWSHandler{tasks: tasks, logger: logger}
}

func (h *TaskWSHandler) Handle(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.logger.Infow("task_ws_connected", "remote", c.RemoteAddr().String())
	defer h.logger.Infow("task_ws_disconnected", "remote", c.RemoteAddr().String())

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnw("task_ws_read_failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		resp := h.answer(ctx, data)
		if err := c.WriteJSON(resp); err != nil {
			h.logger.Warnw("task_ws_write_failed", "id", resp.ID, "error", err)
			return
		}
	}
}

func (h *TaskWSHandler) answer(ctx context.Context, data []byte) domain.RPCResponse {
	var req domain.RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warnw("task_ws_bad_frame", "error", err)
		return domain.RPCResponse{Error: "invalid request frame"}
	}

	var body dto.TaskRequest
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return domain.RPCResponse{ID: req.ID, Error: "invalid request payload"}
		}
	}

	h.logger.Infow("task_ws_request", "id", req.ID, "kind", req.Type, "type", body.Type)
	out, err := h.tasks.Dispatch(ctx, req.Type, body)
	if err != nil {
		h.logger.Warnw("task_ws_request_failed", "id", req.ID, "kind", req.Type, "error", err)
		return domain.RPCResponse{ID: req.ID, Error: err.Error()}
	}

	result, err := json.Marshal(out)
	if err != nil {
		return domain.RPCResponse{ID: req.ID, Error: err.Error()}
	}
	return domain.RPCResponse{ID: req.ID, Result: result}
}
