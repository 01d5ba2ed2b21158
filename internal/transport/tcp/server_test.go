package tcp_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omochice/tcp-echo/internal/config"
	"github.com/omochice/tcp-echo/internal/echo"
	"github.com/omochice/tcp-echo/internal/transport/tcp"
	"github.com/omochice/tcp-echo/pkg/protocol"
)

// syncBuffer is a bytes.Buffer safe for the server goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Listen.Port = 0
	return cfg
}

// startServer listens synchronously and serves in the background.
func startServer(t *testing.T, cfg config.Config) (*tcp.Server, *syncBuffer, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	srv := tcp.New(cfg, out)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()
	t.Cleanup(srv.Stop)
	return srv, out, errChan
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read error: %v", err)
	}
	return string(buf)
}

func waitForState(t *testing.T, srv *tcp.Server, want echo.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", srv.State(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_Echo(t *testing.T) {
	srv, out, _ := startServer(t, testConfig())

	conn := dial(t, srv.Addr())
	if got := roundTrip(t, conn, "hello"); got != "hello" {
		t.Errorf("echo = %q, want %q", got, "hello")
	}

	output := out.String()
	if !strings.Contains(output, "TCP Echo server is listening on "+srv.Addr()) {
		t.Errorf("missing banner in %q", output)
	}
	if !strings.Contains(output, "Connected by "+conn.LocalAddr().String()) {
		t.Errorf("missing peer line in %q", output)
	}
	if !strings.Contains(output, "Received: hello\n") {
		t.Errorf("missing received line in %q", output)
	}
}

func TestServer_IdentityOverManyWrites(t *testing.T) {
	srv, _, _ := startServer(t, testConfig())
	conn := dial(t, srv.Addr())

	var sent bytes.Buffer
	for i := 0; i < 50; i++ {
		chunk := strings.Repeat(string(rune('a'+i%26)), i*37%1500+1)
		sent.WriteString(chunk)
		if _, err := conn.Write([]byte(chunk)); err != nil {
			t.Fatalf("write error: %v", err)
		}
	}
	conn.(*net.TCPConn).CloseWrite()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, sent.Bytes()) {
		t.Errorf("echoed %d bytes, sent %d bytes; streams differ", len(got), sent.Len())
	}
}

func TestServer_StateCycle(t *testing.T) {
	srv, _, _ := startServer(t, testConfig())
	waitForState(t, srv, echo.StateListening)
	if srv.Peer() != "" {
		t.Errorf("Peer() while listening = %q, want empty", srv.Peer())
	}

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	roundTrip(t, conn, "ping")
	waitForState(t, srv, echo.StateServing)
	if got, want := srv.Peer(), conn.LocalAddr().String(); got != want {
		t.Errorf("Peer() while serving = %q, want %q", got, want)
	}

	conn.Close()
	waitForState(t, srv, echo.StateListening)
	if srv.Peer() != "" {
		t.Errorf("Peer() after release = %q, want empty", srv.Peer())
	}
}

func TestServer_OneConnectionAtATime(t *testing.T) {
	srv, _, _ := startServer(t, testConfig())

	first, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect first client: %v", err)
	}
	if got := roundTrip(t, first, "first"); got != "first" {
		t.Fatalf("first echo = %q", got)
	}

	second := dial(t, srv.Addr())
	if _, err := second.Write([]byte("second")); err != nil {
		t.Fatalf("second write error: %v", err)
	}

	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = second.Read(make([]byte, 16))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("second client was served while first was open: err = %v", err)
	}

	first.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len("second"))
	if _, err := io.ReadFull(second, buf); err != nil {
		t.Fatalf("second client not served after first closed: %v", err)
	}
	if string(buf) != "second" {
		t.Errorf("second echo = %q, want %q", buf, "second")
	}
}

func TestServer_EmptySessionReturnsToListening(t *testing.T) {
	srv, out, errChan := startServer(t, testConfig())

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	conn.Write(nil)
	conn.Close()

	next := dial(t, srv.Addr())
	if got := roundTrip(t, next, "after"); got != "after" {
		t.Errorf("echo = %q, want %q", got, "after")
	}
	if strings.Count(out.String(), "Connected by") != 2 {
		t.Errorf("expected two sessions in %q", out.String())
	}

	select {
	case err := <-errChan:
		t.Fatalf("server exited: %v", err)
	default:
	}
}

func TestServer_InvalidUTF8IsFatal(t *testing.T) {
	srv, _, errChan := startServer(t, testConfig())

	conn := dial(t, srv.Addr())
	if _, err := conn.Write([]byte{0xff, 0xfe, 0xfd}); err != nil {
		t.Fatalf("write error: %v", err)
	}

	select {
	case err := <-errChan:
		if !errors.Is(err, protocol.ErrInvalidUTF8) {
			t.Errorf("Serve() error = %v, want ErrInvalidUTF8", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on undecodable chunk")
	}
}

func TestServer_ReadTimeoutIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Echo.ReadTimeout = 50 * time.Millisecond
	srv, _, errChan := startServer(t, cfg)

	dial(t, srv.Addr())

	select {
	case err := <-errChan:
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Errorf("Serve() error = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not time out idle connection")
	}
}

func TestServer_StopWhileServing(t *testing.T) {
	srv, _, errChan := startServer(t, testConfig())

	conn := dial(t, srv.Addr())
	roundTrip(t, conn, "busy")
	waitForState(t, srv, echo.StateServing)

	srv.Stop()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve() after Stop error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	if srv.State() != echo.StateStopped {
		t.Errorf("state = %s, want STOPPED", srv.State())
	}

	if _, err := net.Dial("tcp", srv.Addr()); err == nil {
		t.Error("expected error after stop, got nil")
	}
}

func TestServer_ListenError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer occupied.Close()

	srv := tcp.NewServer(tcp.Options{Address: occupied.Addr().String()})
	if err := srv.Start(); err == nil {
		srv.Stop()
		t.Fatal("expected error when address is in use")
	}
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := tcp.New(testConfig(), io.Discard)
	if err := srv.Serve(); err == nil {
		t.Error("expected error when serving before Listen")
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() = %q, want empty", srv.Addr())
	}
}
