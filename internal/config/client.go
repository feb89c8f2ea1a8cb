package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// ClientConfig holds the settings of the taskctl command line client.
type ClientConfig struct {
	ServerURL string        `yaml:"server_url"`
	Token     string        `yaml:"token"`
	Transport string        `yaml:"transport"`
	Timeout   time.Duration `yaml:"timeout"`
	LogLevel  string        `yaml:"log_level"`
}

func defaultClientConfigPaths() []string {
	paths := []string{"./taskctl.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskctl", "taskctl.yaml"))
	}
	return paths
}

// LoadClient reads the client config from path, or from the first default
// location that exists. A missing file is not an error: defaults apply and
// flags are expected to fill in the rest.
func LoadClient(path string) (*ClientConfig, error) {
	configPath := path
	if configPath == "" {
		for _, p := range defaultClientConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	var cfg ClientConfig
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://127.0.0.1:8090"
	}
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWS {
		return fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportWS, c.Transport)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
