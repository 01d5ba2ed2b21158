// Package tcp provides a TCP client for the echo server.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/omochice/tcp-echo/internal/client"
	"github.com/omochice/tcp-echo/internal/config"
	transport "github.com/omochice/tcp-echo/internal/transport/tcp"
	"github.com/omochice/tcp-echo/pkg/protocol"
)

// Client represents a TCP echo client
type Client struct {
	address    string
	timeout    time.Duration
	bufferSize int
	mu         sync.RWMutex
	conn       *transport.Conn
}

// New creates a new Client instance. A zero timeout blocks indefinitely.
func New(address string, timeout time.Duration) *Client {
	return &Client{
		address:    address,
		timeout:    timeout,
		bufferSize: config.DefaultBufferSize,
	}
}

// Connect establishes a connection to the server. It fails with
// client.ErrAlreadyConnected until Disconnect has been called.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return client.ErrAlreadyConnected
	}
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		conn.Close()
		return client.ErrAlreadyConnected
	}
	c.conn = transport.NewConn(conn).
		WithBufferSize(c.bufferSize).
		WithTimeouts(c.timeout, c.timeout)
	return nil
}

// Disconnect closes the connection to the server
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

// Send writes the UTF-8 encoded message in full
func (c *Client) Send(ctx context.Context, message string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	data, err := protocol.Encode(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive performs one read of up to 1024 bytes. A closed connection yields
// an empty response.
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

// ReceiveFull keeps reading until n bytes have arrived or the server closes.
func (c *Client) ReceiveFull(ctx context.Context, n int) (string, error) {
	conn, err := c.current()
	if err != nil {
		return "", err
	}
	var data []byte
	for len(data) < n {
		chunk, err := conn.Read(ctx)
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("server closed after %d of %d bytes: %w", len(data), n, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive response: %w", err)
		}
		data = append(data, chunk...)
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
