package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/netly/taskctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if msg, ok := s.fail[r.URL.Path]; ok {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	switch r.URL.Path {
	case "/api/v1/tasks/detail":
		w.Write([]byte(`{"type":"BUILD","status":"RUNNING"}`))
	default:
		w.Write([]byte(`{"accepted":true}`))
	}
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "taskctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server_url: "+srv.URL+"\ntoken: tok\nlog_level: error\n"), 0o600))

	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_Exec(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out, err := runCLI(t, srv, "exec", "BUILD")
	require.NoError(t, err)

	var res domain.ExecResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.TriggerSuccess, res.TriggerState)
	require.NotNil(t, res.Result)
	assert.Equal(t, domain.TaskStatusRunning, res.Result.Status)
	assert.Equal(t, []string{"/api/v1/tasks/run", "/api/v1/tasks/detail"}, fake.paths)
}

func TestCLI_CancelFailure(t *testing.T) {
	fake := &fakeServer{fail: map[string]string{"/api/v1/tasks/cancel": "task: not running"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out, err := runCLI(t, srv, "cancel", "BUILD")
	assert.ErrorIs(t, err, ErrTaskFailed)

	var res domain.ExecResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.TriggerFail, res.TriggerState)
	assert.Equal(t, "task: not running", res.ErrMsg)
	assert.Nil(t, res.Result)
	assert.Equal(t, []string{"/api/v1/tasks/cancel"}, fake.paths)
}

func TestCLI_Detail(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	out, err := runCLI(t, srv, "detail", "BUILD")
	require.NoError(t, err)

	var res domain.CallResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.TriggerSuccess, res.TriggerState)
	assert.JSONEq(t, `{"type":"BUILD","status":"RUNNING"}`, string(res.Result))
}

func TestCLI_RejectsBadTransport(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	_, err := runCLI(t, srv, "--transport", "grpc", "detail", "BUILD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}

func TestCLI_RequiresTaskType(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	_, err := runCLI(t, srv, "exec")
	assert.Error(t, err)
}
