package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/omochice/tcp-echo/internal/config"
	"github.com/omochice/tcp-echo/internal/echo"
)

// Handshake turns an accepted connection into an echo.Conn. A failed
// handshake drops that connection and the server keeps listening.
type Handshake func(ctx context.Context, conn net.Conn) (echo.Conn, error)

// Options describe one listener.
type Options struct {
	Name      string // shown in the listening banner, e.g. "TCP"
	Address   string
	Backlog   int
	Echo      config.EchoConfig
	Handshake Handshake // nil for raw TCP
	Output    io.Writer // protocol lines; defaults to os.Stdout
}

// Server accepts one connection at a time and echoes it until the peer
// closes. Connections arriving meanwhile wait in the listen backlog.
type Server struct {
	opts     Options
	mu       sync.Mutex
	listener net.Listener
	machine  echo.Machine
	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the raw TCP echo server described by cfg.
func New(cfg config.Config, out io.Writer) *Server {
	return NewServer(Options{
		Name:    "TCP",
		Address: cfg.Addr(),
		Backlog: cfg.Listen.Backlog,
		Echo:    cfg.Echo,
		Output:  out,
	})
}

// NewServer creates a server from explicit options.
func NewServer(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "TCP"
	}
	if opts.Backlog < 1 {
		opts.Backlog = config.DefaultBacklog
	}
	if opts.Echo.BufferSize < 1 {
		opts.Echo.BufferSize = config.DefaultBufferSize
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Handshake == nil {
		opts.Handshake = rawHandshake(opts.Echo)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
	}
}

// Start binds the listener and serves until Stop or a fatal error.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the listening socket without accepting yet.
func (s *Server) Listen() error {
	listener, err := Listen(s.opts.Address, s.opts.Backlog)
	if err != nil {
		return fmt.Errorf("failed to start %s echo server: %w", s.opts.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		listener.Close()
		return net.ErrClosed
	default:
	}
	if err := s.machine.Listen(); err != nil {
		listener.Close()
		return err
	}
	s.listener = listener
	return nil
}

// Serve runs the accept loop on a listener opened by Listen. It returns nil
// after Stop, and an error for any accept, read, write or decode failure.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	if s.stopping() {
		s.mu.Unlock()
		return nil
	}
	if listener == nil {
		s.mu.Unlock()
		return errors.New("server is not listening")
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	fmt.Fprintf(s.opts.Output, "%s Echo server is listening on %s\n", s.opts.Name, listener.Addr())
	slog.Info("Echo server started", "transport", s.opts.Name, "addr", listener.Addr().String(), "backlog", s.opts.Backlog)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.stopping() {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		if err := s.serveConn(conn); err != nil {
			if s.stopping() {
				return nil
			}
			return err
		}
	}
}

// serveConn runs one Serving(conn) state and returns to Listening.
func (s *Server) serveConn(nc net.Conn) error {
	conn, err := s.opts.Handshake(s.ctx, nc)
	if err != nil {
		slog.Warn("Handshake failed", "transport", s.opts.Name, "peer", nc.RemoteAddr().String(), "error", err)
		nc.Close()
		return nil
	}
	defer conn.Close()

	if err := s.machine.Accept(conn); err != nil {
		return err
	}
	defer s.machine.Release()

	fmt.Fprintf(s.opts.Output, "Connected by %s\n", conn.RemoteAddr())
	slog.Debug("Serving connection", "transport", s.opts.Name, "peer", conn.RemoteAddr())

	stats, err := echo.Serve(s.ctx, conn, s.opts.Output)
	slog.Info("Connection closed", "transport", s.opts.Name, "peer", conn.RemoteAddr(), "chunks", stats.Chunks, "bytes", stats.Bytes)
	return err
}

// Stop closes the listener and any connection being served, then waits for
// Serve to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		if conn := s.machine.Stop(); conn != nil {
			conn.Close()
		}
	})
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// State reports whether the server is listening or serving a connection.
func (s *Server) State() echo.State {
	return s.machine.State()
}

// Peer returns the address of the connection being served, or "" while
// listening.
func (s *Server) Peer() string {
	if conn := s.machine.Conn(); conn != nil {
		return conn.RemoteAddr()
	}
	return ""
}

func (s *Server) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func rawHandshake(cfg config.EchoConfig) Handshake {
	return func(_ context.Context, conn net.Conn) (echo.Conn, error) {
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		return NewConn(conn).
			WithBufferSize(cfg.BufferSize).
			WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout), nil
	}
}
