package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/pkg/utils/crypto"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Features FeaturesConfig `mapstructure:"features"`
	Tasks    []TaskConfig   `mapstructure:"tasks"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

// TaskConfig declares one task type the server can run.
type TaskConfig struct {
	Type       string        `mapstructure:"type"`
	Runner     string        `mapstructure:"runner"`
	Command    string        `mapstructure:"command"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	PrivateKey string        `mapstructure:"private_key"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TASKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("features.request_id_header", "X-Request-ID")
}

func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.Type == "" {
			return fmt.Errorf("tasks[%d]: type is required", i)
		}
		if !domain.TaskType(t.Type).Valid() {
			return fmt.Errorf("tasks[%d]: type %q must be 1-64 letters, digits, '_', '-' or '.'", i, t.Type)
		}
		if _, dup := seen[t.Type]; dup {
			return fmt.Errorf("tasks[%d]: duplicate type %q", i, t.Type)
		}
		seen[t.Type] = struct{}{}

		kind := domain.RunnerKind(t.Runner)
		if !kind.Valid() {
			return fmt.Errorf("tasks[%d]: unknown runner %q", i, t.Runner)
		}
		switch kind {
		case domain.RunnerShell:
			if t.Command == "" {
				return fmt.Errorf("tasks[%d]: command is required for shell runner", i)
			}
		case domain.RunnerSSH:
			if t.Command == "" || t.Host == "" || t.User == "" {
				return fmt.Errorf("tasks[%d]: command, host and user are required for ssh runner", i)
			}
		}
	}
	return nil
}

// TaskDefinitions resolves the configured tasks, decrypting "enc:" secrets
// with the security encryption key.
func (c *Config) TaskDefinitions() ([]domain.TaskDefinition, error) {
	defs := make([]domain.TaskDefinition, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		password, err := c.secret(t.Password)
		if err != nil {
			return nil, fmt.Errorf("task %s: password: %w", t.Type, err)
		}
		privateKey, err := c.secret(t.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("task %s: private_key: %w", t.Type, err)
		}
		defs = append(defs, domain.TaskDefinition{
			Type:       domain.TaskType(t.Type),
			Runner:     domain.RunnerKind(t.Runner),
			Command:    t.Command,
			Timeout:    t.Timeout,
			Host:       t.Host,
			Port:       t.Port,
			User:       t.User,
			Password:   password,
			PrivateKey: privateKey,
		})
	}
	return defs, nil
}

func (c *Config) secret(value string) (string, error) {
	return crypto.OpenSecret(value, c.Security.EncryptionKey)
}
