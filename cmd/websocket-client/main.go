package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/tcp-echo/internal/client/ws"
	"github.com/omochice/tcp-echo/internal/logger"
)

const usage = "Usage: websocket-client <url> <message>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("websocket-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "Bound on connect, send and receive (0 blocks indefinitely)")
	logLevel := fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(stdout, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stdout, usage)
		return 1
	}

	log := logger.New(logger.Config{Level: *logLevel, Output: stderr})
	url, message := fs.Arg(0), fs.Arg(1)

	c := ws.New(url, *timeout)
	if err := c.Connect(ctx); err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	defer c.Disconnect()
	fmt.Fprintf(stdout, "Connected to %s\n", url)

	if err := c.Send(ctx, message); err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "Sent: %s\n", message)

	response, err := c.Receive(ctx)
	if err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "Received: %s\n", response)
	return 0
}
