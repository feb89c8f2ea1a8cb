package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/netly/taskctl/internal/config"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/core/services"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
	"github.com/netly/taskctl/internal/infrastructure/remote"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

// ErrTaskFailed is returned when a command ran but the remote side
// reported FAIL. The result has already been printed.
var ErrTaskFailed = errors.New("task command failed")

type options struct {
	configPath string
	server     string
	token      string
	transport  string
	timeout    time.Duration
}

// Execute runs the taskctl command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		if !errors.Is(err, ErrTaskFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Trigger, cancel and inspect background tasks on a task server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to taskctl.yaml")
	flags.StringVar(&opts.server, "server", "", "task server base URL")
	flags.StringVar(&opts.token, "token", "", "admin API token")
	flags.StringVar(&opts.transport, "transport", "", "remote transport: http or ws")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall timeout for the command")

	root.AddCommand(
		execCommand(opts, "exec", "Start a task and print its status", func(c ports.TaskController) execFunc { return c.Exec }),
		execCommand(opts, "cancel", "Cancel a task and print its status", func(c ports.TaskController) execFunc { return c.Cancel }),
		callCommand(opts, "detail", "Print the current status of a task", func(c ports.TaskController) callFunc { return c.GetTaskDetail }),
		callCommand(opts, "run", "Send only the start command", func(c ports.TaskController) callFunc { return c.RunTask }),
		callCommand(opts, "cancel-task", "Send only the cancel command", func(c ports.TaskController) callFunc { return c.CancelTask }),
	)

	return root
}

type (
	execFunc func(context.Context, domain.TaskType) domain.ExecResult
	callFunc func(context.Context, domain.TaskType) domain.CallResult
)

func execCommand(opts *options, use, short string, pick func(ports.TaskController) execFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <TASK_TYPE>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts, func(ctx context.Context, c ports.TaskController) error {
				res := pick(c)(ctx, taskType(args[0]))
				return printResult(cmd.OutOrStdout(), res, res.Failed())
			})
		},
	}
}

func callCommand(opts *options, use, short string, pick func(ports.TaskController) callFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <TASK_TYPE>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts, func(ctx context.Context, c ports.TaskController) error {
				res := pick(c)(ctx, taskType(args[0]))
				return printResult(cmd.OutOrStdout(), res, res.Failed())
			})
		},
	}
}

func withController(cmd *cobra.Command, opts *options, fn func(context.Context, ports.TaskController) error) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := logger.New(config.LoggerConfig{
		Level:       cfg.LogLevel,
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	caller, closeCaller, err := newCaller(cfg, log)
	if err != nil {
		return err
	}
	defer closeCaller()

	ctx, cancel := contextFor(cmd.Context(), cfg.Timeout)
	defer cancel()

	return fn(ctx, services.NewTaskController(caller, log))
}

func resolveConfig(cmd *cobra.Command, opts *options) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = opts.server
	}
	if flags.Changed("token") {
		cfg.Token = opts.token
	}
	if flags.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TASKCTL_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newCaller(cfg *config.ClientConfig, log *logger.Logger) (ports.RemoteCaller, func(), error) {
	switch cfg.Transport {
	case config.TransportWS:
		caller, err := remote.NewWSCaller(remote.WSCallerConfig{
			BaseURL: cfg.ServerURL,
			Token:   cfg.Token,
			Logger:  log,
		})
		if err != nil {
			return nil, nil, err
		}
		return caller, func() { caller.Close() }, nil
	default:
		caller := remote.NewHTTPCaller(remote.HTTPCallerConfig{
			BaseURL: cfg.ServerURL,
			Token:   cfg.Token,
			Version: Version,
			Timeout: cfg.Timeout,
			Logger:  log,
		})
		return caller, func() {}, nil
	}
}

func taskType(arg string) domain.TaskType {
	return domain.TaskType(strings.TrimSpace(arg))
}

func printResult(out io.Writer, v any, failed bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if failed {
		return ErrTaskFailed
	}
	return nil
}

func contextFor(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}
