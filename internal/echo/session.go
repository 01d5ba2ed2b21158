package echo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/omochice/tcp-echo/pkg/protocol"
)

// Stats summarises one served connection.
type Stats struct {
	Chunks int
	Bytes  int64
}

// Serve echoes every chunk read from conn back to it until the peer closes.
// Each chunk is printed to out as a "Received:" line before it is echoed.
//
// A clean close by the peer returns a nil error. A chunk that is not valid
// UTF-8 stops the session before it is echoed, as does any read or write
// error. Serve does not close conn.
func Serve(ctx context.Context, conn Conn, out io.Writer) (Stats, error) {
	var stats Stats
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("failed to read from %s: %w", conn.RemoteAddr(), err)
		}

		text, err := protocol.Decode(data)
		if err != nil {
			return stats, fmt.Errorf("failed to decode chunk from %s: %w", conn.RemoteAddr(), err)
		}
		fmt.Fprintf(out, "Received: %s\n", text)

		if err := conn.Write(ctx, data); err != nil {
			return stats, fmt.Errorf("failed to write to %s: %w", conn.RemoteAddr(), err)
		}
		stats.Chunks++
		stats.Bytes += int64(len(data))
	}
}
