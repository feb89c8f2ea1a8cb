package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/netly/taskctl/internal/config"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/core/services"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/db"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"github.com/netly/taskctl/internal/infrastructure/remote"
	transporthttp "github.com/netly/taskctl/internal/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "secret-key"

// waitRunner blocks until its context is cancelled.
type waitRunner struct{}

func (waitRunner) Run(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	log := logger.NewNop()
	svc, err := services.NewTaskService(services.TaskServiceConfig{
		Definitions: []domain.TaskDefinition{
			{Type: "BUILD", Runner: domain.RunnerShell, Command: "make"},
		},
		Repository: db.NewMemoryTaskRunRepository(),
		Runners: func(domain.TaskDefinition) (ports.Runner, error) {
			return waitRunner{}, nil
		},
		Logger: log,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	cfg := &config.Config{}
	cfg.Auth.AdminAPIKey = adminKey
	cfg.Features.RequestIDHeader = "X-Request-ID"

	return transporthttp.NewApp(transporthttp.RouterConfig{
		Service:    svc,
		Logger:     log,
		Config:     cfg,
		CancelWait: time.Second,
	})
}

func post(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminKey)
	resp, err := app.Test(req, 3000)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// =============================================================================
// HTTP ROUTES
// =============================================================================

func TestRoutes_Health(t *testing.T) {
	app := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRoutes_RequireAdminToken(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/tasks/detail", strings.NewReader(`{"type":"BUILD"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_RunDetailCancel(t *testing.T) {
	app := newTestApp(t)

	status, body := post(t, app, "/api/v1/tasks/detail", `{"type":"BUILD"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"status":"IDLE"`)

	status, body = post(t, app, "/api/v1/tasks/run", `{"type":"BUILD"}`)
	assert.Equal(t, fiber.StatusAccepted, status)
	var accepted domain.RunAccepted
	require.NoError(t, json.Unmarshal([]byte(body), &accepted))
	assert.True(t, accepted.Accepted)
	assert.NotEmpty(t, accepted.RunID)

	status, body = post(t, app, "/api/v1/tasks/run", `{"type":"BUILD"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.JSONEq(t, `{"error":"task: already running"}`, body)

	status, _ = post(t, app, "/api/v1/tasks/cancel", `{"type":"BUILD"}`)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = post(t, app, "/api/v1/tasks/detail", `{"type":"BUILD"}`)
	assert.Equal(t, fiber.StatusOK, status)
	var detail domain.TaskDetail
	require.NoError(t, json.Unmarshal([]byte(body), &detail))
	assert.Equal(t, domain.TaskStatusCancelled, detail.Status)
	assert.Equal(t, accepted.RunID, detail.RunID)
}

func TestRoutes_Errors(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown type", "/api/v1/tasks/run", `{"type":"DEPLOY"}`, fiber.StatusNotFound},
		{"missing type", "/api/v1/tasks/run", `{}`, fiber.StatusBadRequest},
		{"bad type", "/api/v1/tasks/detail", `{"type":"a b"}`, fiber.StatusBadRequest},
		{"bad json", "/api/v1/tasks/run", `{`, fiber.StatusBadRequest},
		{"cancel idle", "/api/v1/tasks/cancel", `{"type":"BUILD"}`, fiber.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := post(t, app, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestRoutes_History(t *testing.T) {
	app := newTestApp(t)
	post(t, app, "/api/v1/tasks/run", `{"type":"BUILD"}`)
	post(t, app, "/api/v1/tasks/cancel", `{"type":"BUILD"}`)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/tasks/BUILD/history?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var runs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "CANCELLED", runs[0]["status"])
}

// =============================================================================
// END TO END THROUGH THE CONTROLLER
// =============================================================================

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestController_OverHTTP(t *testing.T) {
	baseURL := serve(t, newTestApp(t))
	caller := remote.NewHTTPCaller(remote.HTTPCallerConfig{BaseURL: baseURL, Token: adminKey})
	ctl := services.NewTaskController(caller, nil)
	ctx := context.Background()

	res := ctl.Exec(ctx, "BUILD")
	require.Equal(t, domain.TriggerSuccess, res.TriggerState, res.ErrMsg)
	assert.Equal(t, domain.TaskStatusRunning, res.Result.Status)

	res = ctl.Exec(ctx, "BUILD")
	assert.Equal(t, domain.TriggerFail, res.TriggerState)
	assert.Equal(t, "task: already running", res.ErrMsg)
	assert.Nil(t, res.Result)

	res = ctl.Cancel(ctx, "BUILD")
	require.Equal(t, domain.TriggerSuccess, res.TriggerState, res.ErrMsg)
	assert.Equal(t, domain.TaskStatusCancelled, res.Result.Status)

	res = ctl.Cancel(ctx, "BUILD")
	assert.Equal(t, domain.TriggerFail, res.TriggerState)
	assert.Equal(t, "task: not running", res.ErrMsg)

	res = ctl.Exec(ctx, "DEPLOY")
	assert.Equal(t, "task: unknown type", res.ErrMsg)
}

func TestController_OverWebsocket(t *testing.T) {
	baseURL := serve(t, newTestApp(t))
	caller, err := remote.NewWSCaller(remote.WSCallerConfig{BaseURL: baseURL, Token: adminKey})
	require.NoError(t, err)
	defer caller.Close()
	ctl := services.NewTaskController(caller, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail := ctl.GetTaskDetail(ctx, "BUILD")
	require.Equal(t, domain.TriggerSuccess, detail.TriggerState, detail.ErrMsg)
	assert.Contains(t, string(detail.Result), `"IDLE"`)

	res := ctl.Exec(ctx, "BUILD")
	require.Equal(t, domain.TriggerSuccess, res.TriggerState, res.ErrMsg)
	assert.Equal(t, domain.TaskStatusRunning, res.Result.Status)

	res = ctl.Cancel(ctx, "BUILD")
	require.Equal(t, domain.TriggerSuccess, res.TriggerState, res.ErrMsg)
	assert.Equal(t, domain.TaskStatusCancelled, res.Result.Status)

	res = ctl.Cancel(ctx, "BUILD")
	assert.Equal(t, domain.TriggerFail, res.TriggerState)
	assert.Equal(t, "task: not running", res.ErrMsg)
}

func TestController_WebsocketRejectsBadToken(t *testing.T) {
	baseURL := serve(t, newTestApp(t))
	caller, err := remote.NewWSCaller(remote.WSCallerConfig{BaseURL: baseURL, Token: "wrong"})
	require.NoError(t, err)
	defer caller.Close()

	res := services.NewTaskController(caller, nil).Exec(context.Background(), "BUILD")
	assert.Equal(t, domain.TriggerFail, res.TriggerState)
	assert.Contains(t, res.ErrMsg, "401")
}
