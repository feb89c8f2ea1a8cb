package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	ErrSSHConnection     = errors.New("ssh: connection failed")
	ErrSSHAuthentication = errors.New("ssh: authentication failed")
	ErrSSHCommandFailed  = errors.New("ssh: command execution failed")
)

type SSHConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	Timeout    time.Duration
	MaxRetries int
}

type SSHClient struct {
	config SSHConfig
}

func NewSSHClient(cfg SSHConfig) *SSHClient {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &SSHClient{config: cfg}
}

func (c *SSHClient) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key", ErrSSHAuthentication)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no credentials provided", ErrSSHAuthentication)
	}
	return methods, nil
}

// Connect dials the host, retrying with linear backoff until MaxRetries
// attempts have failed or ctx is done.
func (c *SSHClient) Connect(ctx context.Context) (*ssh.Client, error) {
	methods, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
	}

	addr := net.JoinHostPort(c.config.Host, fmt.Sprintf("%d", c.config.Port))
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		dialer := net.Dialer{Timeout: c.config.Timeout, KeepAlive: 60 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
		} else {
			conn.SetDeadline(time.Now().Add(c.config.Timeout))
			sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
			if err == nil {
				conn.SetDeadline(time.Time{})
				return ssh.NewClient(sshConn, chans, reqs), nil
			}
			conn.Close()
			lastErr = err
		}

		if attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrSSHConnection, ctx.Err())
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}

	return nil, fmt.Errorf("%w: %s: %v (after %d attempts)", ErrSSHConnection, addr, lastErr, c.config.MaxRetries)
}

// sessionDrainTimeout bounds how long a cancelled session may keep copying
// output before Execute returns.
const sessionDrainTimeout = 2 * time.Second

// outputBuffer is written by the session's copy goroutines and read by
// Execute, possibly before those goroutines have stopped.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Execute runs cmd in a new session on client. Cancelling ctx kills the
// remote process.
func (c *SSHClient) Execute(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create session", ErrSSHConnection)
	}
	defer session.Close()

	var stdout, stderr outputBuffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		select {
		case <-done:
		case <-time.After(sessionDrainTimeout):
		}
		return stdout.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			msg := stderr.String()
			if msg == "" {
				msg = err.Error()
			}
			return stdout.String(), fmt.Errorf("%w: %s", ErrSSHCommandFailed, msg)
		}
	}

	return stdout.String(), nil
}

// RunCommand connects, executes cmd and disconnects.
func (c *SSHClient) RunCommand(ctx context.Context, cmd string) (string, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	return c.Execute(ctx, client, cmd)
}
