package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startSSHServer serves "exec" sessions: "hello" prints once and exits 0,
// anything else prints ticks until the session is closed.
func startSSHServer(t *testing.T) (string, int) {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == "ops" && string(password) == "secret" {
				return nil, nil
			}
			return nil, ErrSSHAuthentication
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, cfg)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveSSHConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				if req.Type != "exec" {
					if req.WantReply {
						req.Reply(false, nil)
					}
					continue
				}
				var payload struct{ Command string }
				ssh.Unmarshal(req.Payload, &payload)
				req.Reply(true, nil)

				if payload.Command == "hello" {
					ch.Write([]byte("hello\n"))
					ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
					ch.Close()
					continue
				}
				go func() {
					for {
						if _, err := ch.Write([]byte("tick\n")); err != nil {
							return
						}
						time.Sleep(5 * time.Millisecond)
					}
				}()
			}
		}()
	}
}

func TestSSHClient_RunCommand(t *testing.T) {
	host, port := startSSHServer(t)
	client := NewSSHClient(SSHConfig{Host: host, Port: port, User: "ops", Password: "secret", MaxRetries: 1})

	out, err := client.RunCommand(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestSSHClient_CancelWhileStreaming(t *testing.T) {
	host, port := startSSHServer(t)
	client := NewSSHClient(SSHConfig{Host: host, Port: port, User: "ops", Password: "secret", MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := client.RunCommand(ctx, "stream")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, out, "tick")
	assert.Less(t, time.Since(start), sessionDrainTimeout+time.Second)
}

func TestSSHClient_BadPassword(t *testing.T) {
	host, port := startSSHServer(t)
	client := NewSSHClient(SSHConfig{
		Host: host, Port: port, User: "ops", Password: "wrong", MaxRetries: 1, Timeout: 2 * time.Second,
	})

	_, err := client.RunCommand(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrSSHConnection)
	assert.Contains(t, err.Error(), net.JoinHostPort(host, strconv.Itoa(port)))
}
