package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/omochice/tcp-echo/internal/client/tcp"
	"github.com/omochice/tcp-echo/internal/config"
	"github.com/omochice/tcp-echo/internal/logger"
)

const usage = "Usage: client <host> <port> <message>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run performs one round trip and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "Bound on connect, send and receive (0 blocks indefinitely)")
	full := fs.Bool("full", false, "Keep reading until the whole message has been echoed")
	logLevel := fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(stdout, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 3 {
		fmt.Fprintln(stdout, usage)
		return 1
	}

	log := logger.New(logger.Config{Level: *logLevel, Output: stderr})

	host, message := fs.Arg(0), fs.Arg(2)
	port, err := config.ParsePort(fs.Arg(1))
	if err != nil {
		log.Error("Invalid arguments", "error", err)
		return 1
	}

	c := tcp.New(net.JoinHostPort(host, strconv.Itoa(port)), *timeout)
	if err := c.Connect(ctx); err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	defer c.Disconnect()
	fmt.Fprintf(stdout, "Connected to %s:%d\n", host, port)

	if err := c.Send(ctx, message); err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "Sent: %s\n", message)

	var response string
	if *full {
		response, err = c.ReceiveFull(ctx, len(message))
	} else {
		response, err = c.Receive(ctx)
	}
	if err != nil {
		log.Error("Round trip failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "Received: %s\n", response)
	log.Debug("Round trip complete", "sent", len(message), "received", len(response))
	return 0
}
