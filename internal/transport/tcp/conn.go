// Package tcp provides the TCP transport for the echo server.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/omochice/tcp-echo/internal/config"
)

// Conn adapts net.Conn to echo.Conn interface.
type Conn struct {
	conn         net.Conn
	bufferSize   int
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a net.Conn with the default buffer size and no timeouts.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, bufferSize: config.DefaultBufferSize}
}

// WithBufferSize sets the maximum chunk size returned by Read.
func (c *Conn) WithBufferSize(size int) *Conn {
	if size > 0 {
		c.bufferSize = size
	}
	return c
}

// WithTimeouts bounds each Read and Write. Zero disables the bound.
func (c *Conn) WithTimeouts(read, write time.Duration) *Conn {
	c.readTimeout = read
	c.writeTimeout = write
	return c
}

// Read implements echo.Conn.
// Reads whatever is available, up to the buffer size. A zero-byte read means
// the peer closed and is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop, err := ArmDeadline(ctx, c.readTimeout, c.conn.SetReadDeadline)
	if err != nil {
		return nil, err
	}
	defer stop()

	buf := make([]byte, c.bufferSize)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, io.EOF
	}
	return nil, ContextError(ctx, err)
}

// Write implements echo.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	stop, err := ArmDeadline(ctx, c.writeTimeout, c.conn.SetWriteDeadline)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := c.conn.Write(data); err != nil {
		return ContextError(ctx, err)
	}
	return nil
}

// Close implements echo.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements echo.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ArmDeadline sets a deadline from timeout and the context's own deadline,
// whichever is sooner, and makes cancellation of ctx interrupt the pending
// operation. The returned function detaches the cancellation hook.
func ArmDeadline(ctx context.Context, timeout time.Duration, set func(time.Time) error) (func() bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := set(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(time.Unix(1, 0))
	})
	return stop, nil
}

// ContextError reports the context's error when it caused err.
func ContextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}
