package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/netly/taskctl/internal/core/ports"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxOutputBytes      = 64 * 1024
	maxErrorBytes       = 4 * 1024
	recordAttempts      = 3
	recordBackoff       = 100 * time.Millisecond
)

type TaskServiceConfig struct {
	Definitions []domain.TaskDefinition
	Repository  ports.TaskRunRepository
	Runners     RunnerFactory
	Logger      *logger.Logger
}

type activeRun struct {
	run       *domain.TaskRun
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// taskService executes configured task types, at most one run per type at
// a time, and answers run, cancel and detail requests for them.
type taskService struct {
	defs    map[domain.TaskType]domain.TaskDefinition
	runners map[domain.TaskType]ports.Runner
	repo    ports.TaskRunRepository
	logger  *logger.Logger

	mu     sync.Mutex
	active map[domain.TaskType]*activeRun
	latest map[domain.TaskType]domain.TaskRun
	wg     sync.WaitGroup
}

func NewTaskService(cfg TaskServiceConfig) (ports.TaskService, error) {
	factory := cfg.Runners
	if factory == nil {
		factory = NewRunner
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &taskService{
		defs:    make(map[domain.TaskType]domain.TaskDefinition, len(cfg.Definitions)),
		runners: make(map[domain.TaskType]ports.Runner, len(cfg.Definitions)),
		repo:    cfg.Repository,
		logger:  log,
		active:  make(map[domain.TaskType]*activeRun),
		latest:  make(map[domain.TaskType]domain.TaskRun),
	}

	for _, def := range cfg.Definitions {
		if !def.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrTaskInvalidType, def.Type)
		}
		runner, err := factory(def)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", def.Type, err)
		}
		s.defs[def.Type] = def
		s.runners[def.Type] = runner
	}

	return s, nil
}

func (s *taskService) Types() []domain.TaskType {
	types := make([]domain.TaskType, 0, len(s.defs))
	for t := range s.defs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Recover fails runs a previous process left RUNNING.
func (s *taskService) Recover(ctx context.Context) error {
	n, err := s.repo.FailRunning(ctx, "interrupted by server restart")
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warnw("task_runs_recovered", "count", n)
	}
	return nil
}

func (s *taskService) Run(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error) {
	def, err := s.definition(taskType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, running := s.active[taskType]; running {
		s.mu.Unlock()
		s.logger.Warnw("task_run_rejected", "type", taskType, "reason", "already running")
		return nil, ErrTaskAlreadyRunning
	}

	now := time.Now()
	run := &domain.TaskRun{
		ID:        uuid.New().String(),
		Type:      taskType,
		Status:    domain.TaskStatusRunning,
		Message:   "Task started",
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if def.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), def.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}

	// Reserve the type so the row can be created without holding s.mu.
	a := &activeRun{run: run, cancel: cancel, done: make(chan struct{})}
	s.active[taskType] = a
	s.wg.Add(1)
	snapshot := *run
	s.mu.Unlock()

	if err := s.repo.Create(ctx, &snapshot); err != nil {
		s.logger.Errorw("task_run_create_failed", "type", taskType, "error", err)
		s.mu.Lock()
		delete(s.active, taskType)
		a.run.Status = domain.TaskStatusFailed
		a.run.Error = err.Error()
		s.mu.Unlock()
		cancel()
		close(a.done)
		s.wg.Done()
		return nil, err
	}

	s.mu.Lock()
	s.latest[taskType] = *run
	s.mu.Unlock()

	go s.execute(runCtx, a, s.runners[taskType])

	s.logger.Infow("task_run_started", "type", taskType, "run_id", run.ID, "runner", def.Runner)
	return &snapshot, nil
}

func (s *taskService) execute(ctx context.Context, a *activeRun, runner ports.Runner) {
	defer s.wg.Done()
	defer close(a.done)
	defer a.cancel()

	output, runErr := runner.Run(ctx)

	s.mu.Lock()
	run := a.run
	now := time.Now()
	run.FinishedAt = &now
	run.UpdatedAt = now
	run.Output = cleanText(output, maxOutputBytes)

	switch {
	case a.cancelled:
		run.Status = domain.TaskStatusCancelled
		run.Message = "Task cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		run.Status = domain.TaskStatusFailed
		run.Message = "Task failed"
		run.Error = ErrRunnerTimeout.Error()
	case runErr != nil:
		run.Status = domain.TaskStatusFailed
		run.Message = "Task failed"
		run.Error = cleanText(fmt.Errorf("%w: %v", ErrRunnerFailed, runErr).Error(), maxErrorBytes)
	default:
		run.Status = domain.TaskStatusSucceeded
		run.Message = "Task completed"
	}

	s.latest[run.Type] = *run
	final := *run
	s.mu.Unlock()

	// The run stays active until its row leaves RUNNING, so a new run of the
	// same type cannot collide with it in storage.
	s.record(&final)

	s.mu.Lock()
	delete(s.active, final.Type)
	s.mu.Unlock()

	s.logger.Infow("task_run_finished",
		"type", final.Type,
		"run_id", final.ID,
		"status", final.Status,
		"duration_ms", now.Sub(final.StartedAt).Milliseconds(),
		"error", final.Error,
	)
}

// record stores the finished run, retrying with backoff. If the full row
// keeps failing, the outcome is stored without its output.
func (s *taskService) record(run *domain.TaskRun) {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = s.repo.Update(context.Background(), run); err == nil {
			return
		}
		s.logger.Warnw("task_run_update_failed", "type", run.Type, "run_id", run.ID, "attempt", attempt, "error", err)
		if attempt < recordAttempts {
			time.Sleep(time.Duration(attempt) * recordBackoff)
		}
	}

	stripped := *run
	stripped.Output = ""
	stripped.Message = "Task output could not be recorded"
	if err := s.repo.Update(context.Background(), &stripped); err != nil {
		s.logger.Errorw("task_run_record_failed", "type", run.Type, "run_id", run.ID, "error", err)
		return
	}

	s.mu.Lock()
	if latest, ok := s.latest[run.Type]; ok && latest.ID == run.ID {
		s.latest[run.Type] = stripped
	}
	s.mu.Unlock()
}

// Cancel stops the running run of taskType and waits, as long as ctx
// allows, for it to settle so a following detail request sees the outcome.
func (s *taskService) Cancel(ctx context.Context, taskType domain.TaskType) (*domain.TaskRun, error) {
	if _, err := s.definition(taskType); err != nil {
		return nil, err
	}

	s.mu.Lock()
	a, running := s.active[taskType]
	if !running {
		s.mu.Unlock()
		return nil, ErrTaskNotRunning
	}
	a.cancelled = true
	a.cancel()
	s.mu.Unlock()

	s.logger.Infow("task_cancel_requested", "type", taskType, "run_id", a.run.ID)

	select {
	case <-a.done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	snapshot := *a.run
	s.mu.Unlock()
	return &snapshot, nil
}

func (s *taskService) Detail(ctx context.Context, taskType domain.TaskType) (*domain.TaskDetail, error) {
	if _, err := s.definition(taskType); err != nil {
		return nil, err
	}

	s.mu.Lock()
	run, ok := s.latest[taskType]
	s.mu.Unlock()
	if ok {
		detail := run.Detail()
		return &detail, nil
	}

	stored, err := s.repo.GetLatestByType(ctx, taskType)
	if errors.Is(err, domain.ErrTaskRunNotFound) {
		detail := domain.IdleDetail(taskType)
		return &detail, nil
	}
	if err != nil {
		return nil, err
	}
	detail := stored.Detail()
	return &detail, nil
}

func (s *taskService) History(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.TaskRun, error) {
	if _, err := s.definition(taskType); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListByType(ctx, taskType, limit)
}

// Shutdown cancels every running run and waits for them to be recorded.
func (s *taskService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, a := range s.active {
		a.cancelled = true
		a.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *taskService) definition(taskType domain.TaskType) (domain.TaskDefinition, error) {
	if taskType == "" {
		return domain.TaskDefinition{}, ErrTaskInvalidType
	}
	def, ok := s.defs[taskType]
	if !ok {
		return domain.TaskDefinition{}, ErrTaskUnknownType
	}
	return def, nil
}

// cleanText makes runner text storable in a text column: valid UTF-8, no
// NUL bytes, and at most limit bytes, keeping the tail on a rune boundary.
func cleanText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
