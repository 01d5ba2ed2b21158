// Package ws provides a WebSocket client for the echo server.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/tcp-echo/internal/client"
	transport "github.com/omochice/tcp-echo/internal/transport/ws"
	"github.com/omochice/tcp-echo/pkg/protocol"
)

// Client represents a WebSocket echo client. Messages are sent as text frames.
type Client struct {
	url     string
	timeout time.Duration
	mu      sync.RWMutex
	conn    *transport.Conn
}

// New creates a new Client for a ws:// URL. A zero timeout blocks indefinitely.
func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, timeout: timeout}
}

// Connect establishes a WebSocket connection to the server. It fails with
// client.ErrAlreadyConnected until Disconnect has been called.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return client.ErrAlreadyConnected
	}
	dialer := ws.Dialer{Timeout: c.timeout}
	conn, br, _, err := dialer.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		conn.Close()
		return client.ErrAlreadyConnected
	}
	c.conn = transport.NewClientConn(conn, br).
		WithOpCode(ws.OpText).
		WithTimeouts(c.timeout, c.timeout)
	return nil
}

// Disconnect performs the closing handshake and closes the connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send writes the message as one text frame
func (c *Client) Send(ctx context.Context, message string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	data, err := protocol.Encode(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WithOpCode(ws.OpText).Write(ctx, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive reads one message. A close frame yields an empty response.
func (c *Client) Receive(ctx context.Context) (string, error) {
	conn, err := c.current()
	if err != nil {
		return "", err
	}
	data, err := conn.Read(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to receive response: %w", err)
	}
	return decode(data)
}

// ReceiveFull reads messages until n bytes have arrived.
func (c *Client) ReceiveFull(ctx context.Context, n int) (string, error) {
	conn, err := c.current()
	if err != nil {
		return "", err
	}
	var data []byte
	for len(data) < n {
		msg, err := conn.Read(ctx)
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("server closed after %d of %d bytes: %w", len(data), n, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive response: %w", err)
		}
		data = append(data, msg...)
	}
	return decode(data)
}

func (c *Client) current() (*transport.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, client.ErrNotConnected
	}
	return c.conn, nil
}

func decode(data []byte) (string, error) {
	text, err := protocol.Decode(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return text, nil
}
