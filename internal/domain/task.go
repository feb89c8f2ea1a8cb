package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var taskTypePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// TaskType names a background task known to the remote side, e.g. "BUILD".
type TaskType string

// Valid reports whether t is 1-64 letters, digits, '_', '-' or '.'.
func (t TaskType) Valid() bool {
	return taskTypePattern.MatchString(string(t))
}

type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "IDLE"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusIdle, TaskStatusRunning, TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether a run in this status will not change again.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskDetail is the status record served by the remote side for one task type.
type TaskDetail struct {
	Type       TaskType   `json:"type,omitempty"`
	Status     TaskStatus `json:"status"`
	RunID      string     `json:"run_id,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Output     string     `json:"output,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`

	// Raw is the payload as the remote side sent it, including fields this
	// client has no name for. When set it is what MarshalJSON emits.
	Raw json.RawMessage `json:"-"`
}

func (d TaskDetail) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	type plain TaskDetail
	return json.Marshal(plain(d))
}

// ==================== Remote Calls ====================

type RequestKind string

const (
	RequestRun    RequestKind = "tasks/run"
	RequestCancel RequestKind = "tasks/cancel"
	RequestDetail RequestKind = "tasks/detail"
)

func (k RequestKind) Valid() bool {
	return k == RequestRun || k == RequestCancel || k == RequestDetail
}

// TaskRequest is the payload shared by every request kind.
type TaskRequest struct {
	Type TaskType `json:"type"`
}

// RunAccepted is what the remote side answers to run and cancel commands.
type RunAccepted struct {
	Accepted bool       `json:"accepted"`
	RunID    string     `json:"run_id,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
}

// ==================== Results ====================

type TriggerState string

const (
	TriggerSuccess TriggerState = "SUCCESS"
	TriggerFail    TriggerState = "FAIL"
)

// emptyResult is what a failed base call carries in Result.
var emptyResult = json.RawMessage(`{}`)

// CallResult is the outcome of a single remote command or query.
type CallResult struct {
	TriggerState TriggerState    `json:"triggerState"`
	Result       json.RawMessage `json:"result"`
	ErrMsg       string          `json:"errMsg"`
}

func CallSucceeded(raw json.RawMessage) CallResult {
	if len(raw) == 0 {
		raw = emptyResult
	}
	return CallResult{TriggerState: TriggerSuccess, Result: raw}
}

func CallFailed(msg string) CallResult {
	if msg == "" {
		msg = "unknown error"
	}
	return CallResult{TriggerState: TriggerFail, Result: emptyResult, ErrMsg: msg}
}

func (r CallResult) Failed() bool {
	return r.TriggerState != TriggerSuccess
}

// ExecResult is the outcome of a composite exec or cancel. Result is set
// exactly when TriggerState is SUCCESS; ErrMsg exactly when it is FAIL.
type ExecResult struct {
	TriggerState TriggerState `json:"triggerState"`
	ErrMsg       string       `json:"errMsg"`
	Result       *TaskDetail  `json:"result"`
}

func Succeeded(detail TaskDetail) ExecResult {
	return ExecResult{TriggerState: TriggerSuccess, Result: &detail}
}

func Failed(msg string) ExecResult {
	if msg == "" {
		msg = "unknown error"
	}
	return ExecResult{TriggerState: TriggerFail, ErrMsg: msg}
}

func (r ExecResult) Failed() bool {
	return r.TriggerState != TriggerSuccess
}

// Unwrap converts the tagged result into the usual (value, error) pair.
func (r ExecResult) Unwrap() (*TaskDetail, error) {
	if r.Failed() {
		return nil, errors.New(r.ErrMsg)
	}
	return r.Result, nil
}

// ==================== Websocket Frames ====================

// RPCRequest is one request frame on the task websocket.
type RPCRequest struct {
	ID      string          `json:"id"`
	Type    RequestKind     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RPCResponse answers the RPCRequest with the same ID. Exactly one of
// Result and Error is set.
type RPCResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
