package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://tasks.example.com
token: abc
transport: ws
timeout: 5s
`), 0o600))

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tasks.example.com", cfg.ServerURL)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, TransportWS, cfg.Transport)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadClient_ExplicitMissingFile(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadClient_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [unclosed"), 0o600))

	_, err := LoadClient(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := &ClientConfig{}
	cfg.applyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "http://127.0.0.1:8090", cfg.ServerURL)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	cfg.Transport = "grpc"
	assert.ErrorContains(t, cfg.Validate(), "transport must be")

	cfg.Transport = TransportHTTP
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}
