// Package ws provides the WebSocket transport for the echo server and client,
// built on gobwas/ws.
package ws

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/tcp-echo/internal/transport/tcp"
)

const closeWait = time.Second

type side struct {
	client bool
	read   func(rw io.ReadWriter) ([]byte, ws.OpCode, error)
	write  func(w io.Writer, op ws.OpCode, p []byte) error
}

var (
	serverSide = side{read: wsutil.ReadClientData, write: wsutil.WriteServerMessage}
	clientSide = side{client: true, read: wsutil.ReadServerData, write: wsutil.WriteClientMessage}
)

// Conn adapts a WebSocket over net.Conn to echo.Conn interface.
// Each Read returns one data message. Write replies with the opcode of the
// last message read, so text stays text and binary stays binary.
type Conn struct {
	conn         net.Conn
	rw           io.ReadWriter
	side         side
	op           ws.OpCode
	peerClosed   atomic.Bool
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServerConn wraps a connection that has completed the server handshake.
func NewServerConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, rw: conn, side: serverSide, op: ws.OpBinary}
}

// NewClientConn wraps a dialed connection. br holds any bytes the server sent
// right after the handshake and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader) *Conn {
	var rw io.ReadWriter = conn
	if br != nil {
		rw = &bufferedConn{Conn: conn, reader: br}
	}
	return &Conn{conn: conn, rw: rw, side: clientSide, op: ws.OpBinary}
}

// WithOpCode sets the opcode used by Write until the next Read.
func (c *Conn) WithOpCode(op ws.OpCode) *Conn {
	c.op = op
	return c
}

// WithTimeouts bounds each Read and Write. Zero disables the bound.
func (c *Conn) WithTimeouts(read, write time.Duration) *Conn {
	c.readTimeout = read
	c.writeTimeout = write
	return c
}

// Read implements echo.Conn.
// A close frame from the peer is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop, err := tcp.ArmDeadline(ctx, c.readTimeout, c.conn.SetReadDeadline)
	if err != nil {
		return nil, err
	}
	defer stop()

	data, op, err := c.side.read(c.rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) || errors.Is(err, io.EOF) {
			c.peerClosed.Store(true)
			return nil, io.EOF
		}
		return nil, tcp.ContextError(ctx, err)
	}
	c.op = op
	return data, nil
}

// Write implements echo.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	stop, err := tcp.ArmDeadline(ctx, c.writeTimeout, c.conn.SetWriteDeadline)
	if err != nil {
		return err
	}
	defer stop()

	if err := c.side.write(c.conn, c.op, data); err != nil {
		return tcp.ContextError(ctx, err)
	}
	return nil
}

// Close implements echo.Conn.
// Sends a close frame unless the peer already closed. The client side then
// waits up to closeWait for the server's close frame, as the closing
// handshake requires.
func (c *Conn) Close() error {
	if !c.peerClosed.Load() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeWait))
		if err := c.side.write(c.conn, ws.OpClose, body); err == nil && c.side.client {
			c.awaitClose()
		}
	}
	return c.conn.Close()
}

func (c *Conn) awaitClose() {
	_ = c.conn.SetReadDeadline(time.Now().Add(closeWait))
	for {
		frame, err := ws.ReadFrame(c.rw)
		if err != nil || frame.Header.OpCode == ws.OpClose {
			return
		}
	}
}

// RemoteAddr implements echo.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve buffered data
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
