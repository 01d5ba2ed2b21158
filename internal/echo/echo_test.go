package echo_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/omochice/tcp-echo/internal/echo"
	"github.com/omochice/tcp-echo/pkg/protocol"
)

// scriptedConn replays reads and records writes.
type scriptedConn struct {
	reads    [][]byte
	readErr  error
	writeErr error
	written  [][]byte
	closed   bool
}

func (c *scriptedConn) Read(ctx context.Context) ([]byte, error) {
	if len(c.reads) == 0 {
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
	data := c.reads[0]
	c.reads = c.reads[1:]
	return data, nil
}

func (c *scriptedConn) Write(ctx context.Context, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

func (c *scriptedConn) RemoteAddr() string {
	return "pipe"
}

var _ echo.Conn = (*scriptedConn)(nil)

func TestServe_EchoesEveryChunk(t *testing.T) {
	conn := &scriptedConn{reads: [][]byte{[]byte("hello "), []byte("world"), []byte("こんにちは")}}
	var out bytes.Buffer

	stats, err := echo.Serve(context.Background(), conn, &out)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if got := string(bytes.Join(conn.written, nil)); got != "hello worldこんにちは" {
		t.Errorf("echoed stream = %q", got)
	}
	if len(conn.written) != 3 {
		t.Errorf("expected one write per chunk, got %d", len(conn.written))
	}
	want := "Received: hello \nReceived: world\nReceived: こんにちは\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if stats.Chunks != 3 || stats.Bytes != int64(len("hello worldこんにちは")) {
		t.Errorf("stats = %+v", stats)
	}
	if conn.closed {
		t.Error("Serve must not close the connection")
	}
}

func TestServe_ImmediateClose(t *testing.T) {
	conn := &scriptedConn{}
	var out bytes.Buffer

	stats, err := echo.Serve(context.Background(), conn, &out)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if stats.Chunks != 0 || out.Len() != 0 || len(conn.written) != 0 {
		t.Errorf("expected no activity, got stats=%+v out=%q", stats, out.String())
	}
}

func TestServe_InvalidUTF8IsNotEchoed(t *testing.T) {
	conn := &scriptedConn{reads: [][]byte{[]byte("ok"), {0xff, 0xfe}}}
	var out bytes.Buffer

	stats, err := echo.Serve(context.Background(), conn, &out)
	if !errors.Is(err, protocol.ErrInvalidUTF8) {
		t.Fatalf("Serve() error = %v, want ErrInvalidUTF8", err)
	}
	if len(conn.written) != 1 || string(conn.written[0]) != "ok" {
		t.Errorf("written = %q, want only the valid chunk", conn.written)
	}
	if stats.Chunks != 1 {
		t.Errorf("stats.Chunks = %d, want 1", stats.Chunks)
	}
}

func TestServe_ReadAndWriteErrors(t *testing.T) {
	reset := errors.New("connection reset by peer")

	t.Run("read error", func(t *testing.T) {
		conn := &scriptedConn{readErr: reset}
		_, err := echo.Serve(context.Background(), conn, io.Discard)
		if !errors.Is(err, reset) {
			t.Errorf("Serve() error = %v, want %v", err, reset)
		}
	})

	t.Run("write error", func(t *testing.T) {
		conn := &scriptedConn{reads: [][]byte{[]byte("x")}, writeErr: reset}
		_, err := echo.Serve(context.Background(), conn, io.Discard)
		if !errors.Is(err, reset) {
			t.Errorf("Serve() error = %v, want %v", err, reset)
		}
		if !strings.Contains(err.Error(), "write") {
			t.Errorf("error should mention write: %v", err)
		}
	})
}

func TestMachine_Cycle(t *testing.T) {
	var m echo.Machine
	if m.State() != echo.StateStopped {
		t.Fatalf("zero Machine state = %s, want STOPPED", m.State())
	}

	if err := m.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	conn := &scriptedConn{}
	if err := m.Accept(conn); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if m.State() != echo.StateServing || m.Conn() != conn {
		t.Fatalf("after Accept state = %s conn = %v", m.State(), m.Conn())
	}

	if err := m.Accept(&scriptedConn{}); !errors.Is(err, echo.ErrInvalidTransition) {
		t.Errorf("second Accept() error = %v, want ErrInvalidTransition", err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if m.State() != echo.StateListening || m.Conn() != nil {
		t.Errorf("after Release state = %s conn = %v", m.State(), m.Conn())
	}
}

func TestMachine_Stop(t *testing.T) {
	var m echo.Machine
	_ = m.Listen()
	conn := &scriptedConn{}
	_ = m.Accept(conn)

	if got := m.Stop(); got != conn {
		t.Errorf("Stop() returned %v, want active conn", got)
	}
	if m.State() != echo.StateStopped {
		t.Errorf("state = %s, want STOPPED", m.State())
	}
	if err := m.Release(); !errors.Is(err, echo.ErrInvalidTransition) {
		t.Errorf("Release() after Stop error = %v, want ErrInvalidTransition", err)
	}
	if err := m.Accept(conn); !errors.Is(err, echo.ErrInvalidTransition) {
		t.Errorf("Accept() after Stop error = %v, want ErrInvalidTransition", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state echo.State
		want  string
	}{
		{echo.StateStopped, "STOPPED"},
		{echo.StateListening, "LISTENING"},
		{echo.StateServing, "SERVING"},
		{echo.State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
