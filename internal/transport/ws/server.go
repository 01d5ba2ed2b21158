package ws

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"

	"github.com/omochice/tcp-echo/internal/config"
	"github.com/omochice/tcp-echo/internal/echo"
	"github.com/omochice/tcp-echo/internal/transport/tcp"
)

// New creates the WebSocket echo listener described by cfg. It shares the
// TCP server's accept loop, so it too serves one connection at a time.
func New(cfg config.Config, out io.Writer) *tcp.Server {
	return tcp.NewServer(tcp.Options{
		Name:      "WebSocket",
		Address:   cfg.WebSocketAddr(),
		Backlog:   cfg.Listen.Backlog,
		Echo:      cfg.Echo,
		Handshake: Upgrade(cfg.Echo),
		Output:    out,
	})
}

// Upgrade performs the server side of the WebSocket opening handshake.
// The read timeout, if any, also bounds the handshake.
func Upgrade(cfg config.EchoConfig) tcp.Handshake {
	return func(ctx context.Context, conn net.Conn) (echo.Conn, error) {
		stop, err := tcp.ArmDeadline(ctx, cfg.ReadTimeout, conn.SetDeadline)
		if err != nil {
			return nil, err
		}
		defer stop()

		if _, err := ws.Upgrade(conn); err != nil {
			return nil, fmt.Errorf("websocket upgrade: %w", tcp.ContextError(ctx, err))
		}
		return NewServerConn(conn).WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout), nil
	}
}
