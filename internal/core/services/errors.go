package services

import "errors"

// Task errors
var (
	ErrTaskUnknownType    = errors.New("task: unknown type")
	ErrTaskInvalidType    = errors.New("task: invalid type")
	ErrTaskAlreadyRunning = errors.New("task: already running")
	ErrTaskNotRunning     = errors.New("task: not running")
)

// Runner errors
var (
	ErrRunnerUnsupported = errors.New("runner: unsupported kind")
	ErrRunnerFailed      = errors.New("runner: execution failed")
	ErrRunnerTimeout     = errors.New("runner: timed out")
)
