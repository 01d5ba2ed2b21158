// Package echo implements the one-connection-at-a-time echo service shared
// by every transport.
package echo

import "context"

// Conn abstracts a bidirectional connection for both TCP and WebSocket.
type Conn interface {
	// Read returns the next chunk received from the peer.
	// Returns io.EOF once the peer has closed the connection.
	Read(ctx context.Context) ([]byte, error)

	// Write sends data to the peer in full.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
