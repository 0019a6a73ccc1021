//go:build linux

package async

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

// Sink is the sending half of a Socket: wait for Ready, then Send.
type Sink struct {
	s      *Socket
	ready  bool
	closed bool
}

// Sink returns a Sink writing through s. Closing the Sink leaves s open.
func (s *Socket) Sink() *Sink { return &Sink{s: s} }

// Ready waits until the socket can take a frame.
func (k *Sink) Ready(ctx context.Context) error {
	if k.closed {
		return socketcan.ErrClosed
	}
	if k.ready {
		return nil
	}
	rc, err := k.s.c.SyscallConn()
	if err != nil {
		return err
	}

	if d, ok := ctx.Deadline(); ok {
		if err := k.s.c.SetWriteDeadline(d); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = k.s.c.SetWriteDeadline(time.Unix(1, 0))
	})
	defer func() {
		stop()
		_ = k.s.c.SetWriteDeadline(time.Time{})
	}()

	var pollErr error
	err = rc.Write(func(fd uintptr) bool {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, 0)
		if err != nil {
			if err == unix.EINTR {
				return false
			}
			pollErr = err
			return true
		}
		return n > 0 && fds[0].Revents&unix.POLLOUT != 0
	})
	if err != nil {
		return contextError(ctx, err)
	}
	if pollErr != nil {
		return pollErr
	}
	k.ready = true
	return nil
}

// Send transmits f, waiting for readiness first if needed.
func (k *Sink) Send(ctx context.Context, f socketcan.Frame) error {
	if err := k.Ready(ctx); err != nil {
		return err
	}
	k.ready = false
	return k.s.WriteFrame(ctx, f)
}

// Flush returns immediately: frames are queued in the kernel once Send
// returns.
func (k *Sink) Flush(ctx context.Context) error {
	if k.closed {
		return socketcan.ErrClosed
	}
	return ctx.Err()
}

// Close releases the sink. Later calls fail with socketcan.ErrClosed.
func (k *Sink) Close() error {
	k.closed = true
	k.ready = false
	return nil
}
