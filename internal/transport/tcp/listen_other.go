//go:build !unix

package tcp

import "net"

// Listen opens a TCP listening socket on address. The backlog cannot be set
// portably here and is left to the platform.
func Listen(address string, backlog int) (net.Listener, error) {
	return net.Listen("tcp", address)
}
