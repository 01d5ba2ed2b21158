package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/tcp-echo/internal/config"
	"github.com/omochice/tcp-echo/internal/logger"
	"github.com/omochice/tcp-echo/internal/transport/tcp"
	"github.com/omochice/tcp-echo/internal/transport/ws"
)

func main() {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run serves until ctx is cancelled or a server fails, and returns the
// process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML config file (optional)")
	host := fs.String("host", "", "Override listen.host")
	port := fs.Int("port", -1, "Override listen.port")
	websocket := fs.Bool("websocket", false, "Also serve WebSocket echo on websocket.port")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.Default()
	// Used until the configured logger is known.
	bootLog := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			bootLog.Error("Failed to load config", "path", *configPath, "error", err)
			return 1
		}
		cfg = *loaded
	}
	if *host != "" {
		cfg.Listen.Host = *host
	}
	if *port >= 0 {
		cfg.Listen.Port = *port
	}
	if *websocket {
		cfg.WebSocket.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Error("Invalid config", "error", err)
		return 1
	}

	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	log := logger.L()

	servers := []*tcp.Server{tcp.New(cfg, stdout)}
	if cfg.WebSocket.Enabled {
		servers = append(servers, ws.New(cfg, stdout))
	}

	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			errChan <- srv.Start()
		}()
	}

	// Wait for either error or shutdown signal
	exitCode := 0
	select {
	case err := <-errChan:
		if err != nil {
			log.Error("Server error", "error", err)
			exitCode = 1
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	for _, srv := range servers {
		if peer := srv.Peer(); peer != "" {
			log.Info("Closing active connection", "peer", peer)
		}
		srv.Stop()
	}
	log.Info("Echo server stopped")
	return exitCode
}
