//go:build linux

// Package async drives CAN sockets through Go's network poller. Reads and
// writes park the calling goroutine instead of an OS thread and honor
// context cancellation and deadlines.
package async

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync/atomic"

	"github.com/mdlayher/socket"
	"golang.org/x/sys/unix"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

// name is reported by mdlayher/socket in its errors.
const name = "can"

// Socket is a non-blocking CAN_RAW socket registered with the runtime
// poller. It is safe for concurrent use; each read and write is a single
// system call.
type Socket struct {
	c      *socket.Conn
	fd     bool
	closed atomic.Bool
}

// Open opens a classic socket on the named interface.
func Open(iface string) (*Socket, error) { return open(iface, false) }

// OpenFd opens a socket that also carries FD frames.
func OpenFd(iface string) (*Socket, error) { return open(iface, true) }

func open(iface string, fd bool) (*Socket, error) {
	addr, err := socketcan.CanAddrFromIface(iface)
	if err != nil {
		return nil, err
	}
	c, err := socket.Socket(unix.AF_CAN, unix.SOCK_RAW, socketcan.CAN_RAW, name, &socket.Config{})
	if err != nil {
		return nil, err
	}
	if fd {
		if err := c.SetsockoptInt(socketcan.SOL_CAN_RAW, socketcan.CAN_RAW_FD_FRAMES, 1); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("enable CAN FD: %w", err)
		}
	}
	if err := c.Bind(addr.Sockaddr()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("bind(%s): %w", iface, err)
	}
	socketcan.Logger().Debug("async socket open", "iface", iface, "fd_frames", fd)
	return &Socket{c: c, fd: fd}, nil
}

// FromCanSocket takes over s's descriptor. Options set on s (filters,
// loopback, error mask) carry over; s must not be used afterwards.
func FromCanSocket(s *socketcan.CanSocket) (*Socket, error) {
	return adopt(s.Detach, false)
}

// FromCanFdSocket is FromCanSocket for FD sockets.
func FromCanFdSocket(s *socketcan.CanFdSocket) (*Socket, error) {
	return adopt(s.Detach, true)
}

func adopt(detach func() (int, error), fd bool) (*Socket, error) {
	sfd, err := detach()
	if err != nil {
		return nil, err
	}
	c, err := socket.New(sfd, name)
	if err != nil {
		_ = unix.Close(sfd)
		return nil, err
	}
	return &Socket{c: c, fd: fd}, nil
}

// ReadFrame waits for the next frame.
func (s *Socket) ReadFrame(ctx context.Context) (socketcan.Frame, error) {
	f, _, err := s.ReadFrameFrom(ctx)
	return f, err
}

// ReadFrameFrom is ReadFrame plus the interface the frame arrived on, which
// matters for sockets bound to every interface.
func (s *Socket) ReadFrameFrom(ctx context.Context) (socketcan.Frame, socketcan.CanAddr, error) {
	if s.closed.Load() {
		return nil, socketcan.CanAddr{}, socketcan.ErrClosed
	}
	var buf [socketcan.CANFD_MTU]byte
	n, from, err := s.c.Recvfrom(ctx, buf[:], 0)
	if err != nil {
		return nil, socketcan.CanAddr{}, contextError(ctx, err)
	}
	if n != socketcan.CAN_MTU && n != socketcan.CANFD_MTU {
		return nil, socketcan.CanAddr{}, os.NewSyscallError("recvfrom", unix.EIO)
	}
	f, err := socketcan.FrameFromBytes(buf[:n])
	if err != nil {
		return nil, socketcan.CanAddr{}, err
	}
	addr, _ := socketcan.CanAddrFromSockaddr(from)
	return f, addr, nil
}

// WriteFrame sends f, retrying while the kernel reports a transient
// failure, until ctx is done.
func (s *Socket) WriteFrame(ctx context.Context, f socketcan.Frame) error {
	if s.closed.Load() {
		return socketcan.ErrClosed
	}
	if _, isFd := f.(socketcan.FdFrame); isFd && !s.fd {
		return fmt.Errorf("%w: FD frame on a classic socket", socketcan.ErrWrongFrameType)
	}
	m, ok := f.(encoding.BinaryMarshaler)
	if !ok {
		return fmt.Errorf("%w: %T", socketcan.ErrWrongFrameType, f)
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		err := s.c.Sendto(ctx, b, 0, nil)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !(socketcan.ShouldRetry(err) || errors.Is(err, unix.EINTR)) {
			return contextError(ctx, err)
		}
	}
}

// Frames returns an endless sequence of received frames. It ends after
// yielding a fatal error, including ctx being done and a read of a size
// that is no frame. Timeouts and frames of the wrong type are yielded as
// errors and skipped.
func (s *Socket) Frames(ctx context.Context) iter.Seq2[socketcan.Frame, error] {
	return func(yield func(socketcan.Frame, error) bool) {
		for {
			f, err := s.ReadFrame(ctx)
			if err != nil {
				fatal := ctx.Err() != nil || errors.Is(err, socketcan.ErrClosed) || errors.Is(err, os.ErrClosed) ||
					!errors.Is(err, socketcan.ErrWrongFrameType) && !socketcan.ShouldRetry(err)
				if !yield(nil, err) || fatal {
					return
				}
				continue
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Clone duplicates the descriptor into a second Socket sharing the kernel
// socket. Each must be closed.
func (s *Socket) Clone() (*Socket, error) {
	rc, err := s.c.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		nfd    int
		dupErr error
	)
	if err := rc.Control(func(fd uintptr) {
		nfd, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, os.NewSyscallError("fcntl", dupErr)
	}
	c, err := socket.New(nfd, name)
	if err != nil {
		_ = unix.Close(nfd)
		return nil, err
	}
	return &Socket{c: c, fd: s.fd}, nil
}

// Close deregisters and closes the descriptor. Pending reads and writes
// return with an error. Closing twice is a no-op.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.c.Close()
}

// contextError makes a context expiry look like a receive timeout on a
// blocking socket: it matches unix.EAGAIN, so ShouldRetry accepts it, and
// the context's own error.
func contextError(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", unix.EAGAIN, cerr)
	}
	return err
}
