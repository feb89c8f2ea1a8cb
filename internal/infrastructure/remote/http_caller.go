package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
)

// CallError is returned by remote callers when a request could not be
// completed. Its Error text is the human readable message, preferring the
// server's own error field when it sent one.
type CallError struct {
	Kind       domain.RequestKind
	StatusCode int
	Message    string
	Err        error
}

func (e *CallError) Error() string {
	return e.Message
}

func (e *CallError) Unwrap() error {
	return e.Err
}

var ErrInvalidResponse = errors.New("remote: invalid response payload")

type HTTPCallerConfig struct {
	BaseURL    string
	Token      string
	Version    string
	Timeout    time.Duration
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// HTTPCaller posts task requests to {BaseURL}/api/v1/{kind}.
type HTTPCaller struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewHTTPCaller(cfg HTTPCallerConfig) *HTTPCaller {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &HTTPCaller{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  fmt.Sprintf("taskctl/%s", version),
		httpClient: client,
		logger:     log,
	}
}

func (c *HTTPCaller) Call(ctx context.Context, kind domain.RequestKind, payload any) (json.RawMessage, error) {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CallError{Kind: kind, Message: fmt.Sprintf("failed to marshal request: %v", err), Err: err}
	}

	endpoint, err := c.resolve(kind)
	if err != nil {
		return nil, &CallError{Kind: kind, Message: fmt.Sprintf("invalid server url: %v", err), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: kind, Message: fmt.Sprintf("failed to create request: %v", err), Err: err}
	}
	c.applyHeaders(httpReq)

	c.logger.Debugw("remote_call_request", "url", endpoint, "kind", kind, "payload_bytes", len(body))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warnw("remote_call_network_error", "kind", kind, "error", err)
		return nil, &CallError{Kind: kind, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: kind, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}

	c.logger.Debugw("remote_call_response",
		"kind", kind,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"resp_bytes", len(respBody),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnw("remote_call_bad_status", "kind", kind, "status", resp.StatusCode)
		return nil, &CallError{Kind: kind, StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(respBody) {
		c.logger.Warnw("remote_call_parse_error", "kind", kind)
		return nil, &CallError{Kind: kind, StatusCode: resp.StatusCode, Message: ErrInvalidResponse.Error(), Err: ErrInvalidResponse}
	}
	return json.RawMessage(respBody), nil
}

func (c *HTTPCaller) resolve(kind domain.RequestKind) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	rel, err := url.Parse("api/v1/" + string(kind))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func (c *HTTPCaller) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorMessage extracts {"error": "..."} from a failed response body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
		return fmt.Sprintf("server returned status %d: %s", status, text)
	}
	return fmt.Sprintf("server returned status %d", status)
}
