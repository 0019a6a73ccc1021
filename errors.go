package socketcan

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Construction errors.
var (
	ErrIDTooLarge     = errors.New("socketcan: identifier out of range")
	ErrTooMuchData    = errors.New("socketcan: payload exceeds frame capacity")
	ErrWrongFrameType = errors.New("socketcan: wrong frame type")
)

// ErrNotErrorFrame is returned when decoding a frame without the ERR flag.
var ErrNotErrorFrame = errors.New("socketcan: not an error frame")

// ErrClosed is returned by operations on a closed socket.
var ErrClosed = errors.New("socketcan: use of closed socket")

// ShouldRetry reports whether err is transient: the operation would have
// blocked (including a receive timeout) or is still in progress. Every
// other error is fatal to the operation that returned it.
func ShouldRetry(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINPROGRESS)
}
