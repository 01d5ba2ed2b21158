// Package protocol converts echoed chunks to and from display text.
//
// The echo wire carries raw bytes with no framing. Text only matters at the
// edges, where a chunk is printed or a command-line message is sent, and
// both edges require valid UTF-8.
package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a chunk or message is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// DecodeError reports where decoding failed.
type DecodeError struct {
	Offset int
	Byte   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: can't decode byte 0x%02x in position %d", ErrInvalidUTF8, e.Byte, e.Offset)
}

// Unwrap lets errors.Is match ErrInvalidUTF8.
func (e *DecodeError) Unwrap() error {
	return ErrInvalidUTF8
}

// Encode returns the UTF-8 bytes of a message.
func Encode(message string) ([]byte, error) {
	if offset := invalidOffset([]byte(message)); offset >= 0 {
		return nil, &DecodeError{Offset: offset, Byte: message[offset]}
	}
	return []byte(message), nil
}

// Decode converts a chunk into text.
// A chunk split in the middle of a multi-byte sequence does not decode.
func Decode(data []byte) (string, error) {
	if offset := invalidOffset(data); offset >= 0 {
		return "", &DecodeError{Offset: offset, Byte: data[offset]}
	}
	return string(data), nil
}

// invalidOffset returns the index of the first byte that starts an invalid
// sequence, or -1 when data is valid.
func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
