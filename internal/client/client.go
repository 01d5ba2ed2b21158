// Package client defines the common interface for echo clients.
package client

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by operations that need an open connection.
var ErrNotConnected = errors.New("not connected to server")

// ErrAlreadyConnected is returned by Connect on a client that is still connected.
var ErrAlreadyConnected = errors.New("already connected to server")

// Client performs request/response round trips against an echo server.
// Both TCP and WebSocket implementations satisfy this interface.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// Send writes the whole message.
	Send(ctx context.Context, message string) error

	// Receive performs a single read and decodes it. It does not wait for
	// the rest of a response that arrives split across several reads.
	Receive(ctx context.Context) (string, error)

	// ReceiveFull reads until n bytes have arrived.
	ReceiveFull(ctx context.Context, n int) (string, error)
}
