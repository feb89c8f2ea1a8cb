package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/executor"
	"github.com/netly/taskctl/internal/infrastructure/remote"
	"github.com/netly/taskctl/internal/infrastructure/stats"
)

// RunnerFactory builds the runner behind a task definition.
type RunnerFactory func(def domain.TaskDefinition) (ports.Runner, error)

// NewRunner is the default RunnerFactory.
func NewRunner(def domain.TaskDefinition) (ports.Runner, error) {
	switch def.Runner {
	case domain.RunnerShell:
		return &shellRunner{exec: executor.NewExecutor("", ""), command: def.Command}, nil
	case domain.RunnerSSH:
		return &sshRunner{
			client: remote.NewSSHClient(remote.SSHConfig{
				Host:       def.Host,
				Port:       def.Port,
				User:       def.User,
				Password:   def.Password,
				PrivateKey: def.PrivateKey,
			}),
			command: def.Command,
		}, nil
	case domain.RunnerStats:
		return &statsRunner{collector: stats.NewCollector(0)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrRunnerUnsupported, def.Runner)
	}
}

type shellRunner struct {
	exec    *executor.Executor
	command string
}

func (r *shellRunner) Run(ctx context.Context) (string, error) {
	result, err := r.exec.Execute(ctx, r.command)
	if result == nil {
		return "", err
	}
	return result.Output, err
}

type sshRunner struct {
	client  *remote.SSHClient
	command string
}

func (r *sshRunner) Run(ctx context.Context) (string, error) {
	return r.client.RunCommand(ctx, r.command)
}

type statsRunner struct {
	collector *stats.Collector
}

func (r *statsRunner) Run(ctx context.Context) (string, error) {
	snapshot, err := r.collector.Collect(ctx)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
