package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/netly/taskctl/internal/domain"
	"github.com/netly/taskctl/internal/infrastructure/logger"
)

const wsTasksPath = "/ws/tasks"

type WSCallerConfig struct {
	BaseURL          string
	Token            string
	HandshakeTimeout time.Duration
	Logger           *logger.Logger
}

// WSCaller sends task requests as frames over one websocket connection,
// dialled on first use and re-dialled after a failure. Calls are
// serialized: a frame is written only after the previous answer arrived.
type WSCaller struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSCaller(cfg WSCallerConfig) (*WSCaller, error) {
	endpoint, err := websocketURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	return &WSCaller{
		url:    endpoint,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger: log,
	}, nil
}

func (c *WSCaller) Call(ctx context.Context, kind domain.RequestKind, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CallError{Kind: kind, Message: fmt.Sprintf("failed to marshal request: %v", err), Err: err}
	}

	conn, err := c.connect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &CallError{Kind: kind, Message: err.Error(), Err: err}
	}

	// Unblock reads and writes once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		conn.SetWriteDeadline(time.Now())
	})
	defer c.release(conn, stop)

	req := domain.RPCRequest{ID: uuid.NewString(), Type: kind, Payload: body}
	c.logger.Debugw("remote_ws_request", "id", req.ID, "kind", kind)
	if err := conn.WriteJSON(req); err != nil {
		return nil, c.fail(ctx, kind, err)
	}

	for {
		var resp domain.RPCResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, c.fail(ctx, kind, err)
		}
		if resp.ID != req.ID {
			c.logger.Warnw("remote_ws_unexpected_frame", "id", resp.ID, "want", req.ID)
			continue
		}
		if resp.Error != "" {
			c.logger.Warnw("remote_ws_call_failed", "kind", kind, "error", resp.Error)
			return nil, &CallError{Kind: kind, Message: resp.Error}
		}
		if len(resp.Result) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return resp.Result, nil
	}
}

// Close closes the underlying connection, if any.
func (c *WSCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WSCaller) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d", resp.StatusCode)
		}
		return nil, err
	}
	c.logger.Debugw("remote_ws_connected", "url", c.url)
	c.conn = conn
	return conn, nil
}

// release detaches the ctx watcher. If it already fired, conn carries
// expired deadlines and is not reused.
func (c *WSCaller) release(conn *websocket.Conn, stop func() bool) {
	if stop() {
		return
	}
	if c.conn == conn {
		c.logger.Debugw("remote_ws_dropped", "reason", "context done during call")
		c.conn.Close()
		c.conn = nil
	}
}

// fail drops the connection so the next call re-dials.
func (c *WSCaller) fail(ctx context.Context, kind domain.RequestKind, err error) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	c.logger.Warnw("remote_ws_network_error", "kind", kind, "error", err)
	return &CallError{Kind: kind, Message: err.Error(), Err: err}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url: unsupported scheme %q", u.Scheme)
	}
	u.Path += wsTasksPath
	return u.String(), nil
}
