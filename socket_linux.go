//go:build linux

package socketcan

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// socket is the descriptor and option surface shared by CanSocket and
// CanFdSocket.
type socket struct {
	fd     int
	closed atomic.Bool
	// rmu keeps a timestamped read's read and ioctl together.
	rmu sync.Mutex
}

func newSocket(fd int) *socket {
	s := &socket{fd: fd}
	runtime.SetFinalizer(s, (*socket).finalize)
	return s
}

func (s *socket) finalize() {
	if s.closed.Swap(true) {
		return
	}
	if err := unix.Close(s.fd); err != nil {
		Logger().Debug("socketcan close of leaked socket failed", "fd", s.fd, "error", err)
	}
}

// sysfd returns the descriptor or ErrClosed. Callers that pass it to a
// system call keep s alive until the call returns, or the finalizer may
// close the descriptor underneath them.
func (s *socket) sysfd() (int, error) {
	if s.closed.Load() {
		return -1, ErrClosed
	}
	return s.fd, nil
}

// open allocates a CAN_RAW socket and binds it to addr. The descriptor is
// closed again on every failure path.
func open(addr CanAddr, fdFrames bool) (*socket, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", os.NewSyscallError("socket", err))
	}
	if err := unix.Bind(fd, addr.Sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%d): %w", addr.Ifindex, os.NewSyscallError("bind", err))
	}
	if fdFrames {
		if err := setsockoptCanInt(fd, CAN_RAW_FD_FRAMES, 1); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("enable CAN FD: %w", err)
		}
	}
	Logger().Debug("socketcan open", "ifindex", addr.Ifindex, "fd", fd, "fd_frames", fdFrames)
	return newSocket(fd), nil
}

// Fd returns the descriptor, or -1 once the socket is closed or detached.
func (s *socket) Fd() int {
	fd, err := s.sysfd()
	if err != nil {
		return -1
	}
	return fd
}

// Detach hands the descriptor to the caller, who becomes responsible for
// closing it. The socket is unusable afterwards.
func (s *socket) Detach() (int, error) {
	if s.closed.Swap(true) {
		return -1, ErrClosed
	}
	runtime.SetFinalizer(s, nil)
	return s.fd, nil
}

// Close releases the descriptor. Closing twice is a no-op.
func (s *socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	runtime.SetFinalizer(s, nil)
	Logger().Debug("socketcan close", "fd", s.fd)
	return os.NewSyscallError("close", unix.Close(s.fd))
}

func (s *socket) dup() (*socket, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return nil, err
	}
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, os.NewSyscallError("fcntl", err)
	}
	return newSocket(nfd), nil
}

// SetFilters replaces the receive filters. An empty set drops every frame.
func (s *socket) SetFilters(fs []Filter) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptCanRawFilter(fd, SOL_CAN_RAW, CAN_RAW_FILTER, toCanFilters(fs)))
}

func (s *socket) SetFilterDropAll() error   { return s.SetFilters(nil) }
func (s *socket) SetFilterAcceptAll() error { return s.SetFilters([]Filter{AcceptAllFilter}) }

// SetErrorFilter selects the error classes delivered as error frames.
func (s *socket) SetErrorFilter(mask uint32) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return setsockoptCanInt(fd, CAN_RAW_ERR_FILTER, int(mask&CAN_ERR_MASK))
}

func (s *socket) SetErrorFilterAcceptAll() error { return s.SetErrorFilter(ERR_MASK_ALL) }
func (s *socket) SetErrorFilterDropAll() error   { return s.SetErrorFilter(ERR_MASK_NONE) }

func (s *socket) ErrorFilter() (uint32, error) {
	v, err := s.canOpt(CAN_RAW_ERR_FILTER)
	return uint32(v), err
}

// SetLoopback controls whether frames sent here reach other sockets on the
// host. The kernel default is on.
func (s *socket) SetLoopback(on bool) error { return s.setCanOpt(CAN_RAW_LOOPBACK, boolInt(on)) }

// SetRecvOwnMsgs controls whether frames sent here are read back here.
func (s *socket) SetRecvOwnMsgs(on bool) error {
	return s.setCanOpt(CAN_RAW_RECV_OWN_MSGS, boolInt(on))
}

// SetJoinFilters makes a frame pass only when it matches every filter.
func (s *socket) SetJoinFilters(on bool) error {
	return s.setCanOpt(CAN_RAW_JOIN_FILTERS, boolInt(on))
}

func (s *socket) Loopback() (bool, error) {
	v, err := s.canOpt(CAN_RAW_LOOPBACK)
	return v != 0, err
}

func (s *socket) RecvOwnMsgs() (bool, error) {
	v, err := s.canOpt(CAN_RAW_RECV_OWN_MSGS)
	return v != 0, err
}

func (s *socket) setCanOpt(opt, v int) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return setsockoptCanInt(fd, opt, v)
}

func (s *socket) canOpt(opt int) (int, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return 0, err
	}
	return getsockoptCanInt(fd, opt)
}

// SetReadTimeout bounds blocking reads. A read that times out fails with an
// error for which ShouldRetry is true. Zero blocks forever.
func (s *socket) SetReadTimeout(d time.Duration) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return setTimeout(fd, unix.SO_RCVTIMEO, d)
}

func (s *socket) SetWriteTimeout(d time.Duration) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return setTimeout(fd, unix.SO_SNDTIMEO, d)
}

func (s *socket) ReadTimeout() (time.Duration, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return 0, err
	}
	return getTimeout(fd, unix.SO_RCVTIMEO)
}

func (s *socket) WriteTimeout() (time.Duration, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return 0, err
	}
	return getTimeout(fd, unix.SO_SNDTIMEO)
}

func (s *socket) SetNonblocking(on bool) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return os.NewSyscallError("fcntl", unix.SetNonblock(fd, on))
}

func (s *socket) write(b []byte) error {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return err
	}
	return writeFull(fd, b)
}

// insist repeats write until it stops failing with a transient error.
func insist(write func() error) error {
	for {
		err := write()
		if err == nil || !(ShouldRetry(err) || errors.Is(err, unix.EINTR)) {
			return err
		}
	}
}

// CanSocket is a CAN_RAW socket carrying classic frames.
type CanSocket struct {
	*socket
}

// OpenCan opens a classic socket on the named interface. Unknown names
// fail with ENODEV.
func OpenCan(name string) (*CanSocket, error) {
	addr, err := CanAddrFromIface(name)
	if err != nil {
		return nil, err
	}
	return OpenCanAddr(addr)
}

func OpenCanIndex(ifindex int) (*CanSocket, error) {
	return OpenCanAddr(NewCanAddr(ifindex))
}

func OpenCanAddr(addr CanAddr) (*CanSocket, error) {
	s, err := open(addr, false)
	if err != nil {
		return nil, err
	}
	return &CanSocket{s}, nil
}

// Clone duplicates the descriptor. Both sockets share the kernel socket and
// each must be closed.
func (s *CanSocket) Clone() (*CanSocket, error) {
	d, err := s.dup()
	if err != nil {
		return nil, err
	}
	return &CanSocket{d}, nil
}

// ReadFrame blocks for the next frame. Error frames come back as
// ErrorFrame, everything else as CanFrame.
func (s *CanSocket) ReadFrame() (Frame, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.read()
}

// ReadFrameTimestamp is ReadFrame plus the kernel's receive time.
func (s *CanSocket) ReadFrameTimestamp() (Frame, time.Time, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	defer runtime.KeepAlive(s)
	f, err := s.read()
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := lastTimestamp(s.fd)
	if err != nil {
		return nil, time.Time{}, err
	}
	return f, ts, nil
}

func (s *CanSocket) read() (Frame, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return nil, err
	}
	var f CanFrame
	n, err := readFull(fd, canFrameBytes(&f))
	if err != nil {
		return nil, err
	}
	if n != CAN_MTU {
		return nil, os.NewSyscallError("read", unix.EIO)
	}
	return classify(f), nil
}

// WriteFrame sends f, which must be a CanFrame or an ErrorFrame.
func (s *CanSocket) WriteFrame(f Frame) error {
	switch f := f.(type) {
	case CanFrame:
		return s.write(canFrameBytes(&f))
	case ErrorFrame:
		return s.write(canFrameBytes(&f.f))
	}
	return fmt.Errorf("%w: cannot send %T on a classic socket", ErrWrongFrameType, f)
}

// WriteFrameInsist retries WriteFrame while it fails with EAGAIN,
// EINPROGRESS or EINTR.
func (s *CanSocket) WriteFrameInsist(f Frame) error {
	return insist(func() error { return s.WriteFrame(f) })
}

// CanFdSocket is a CAN_RAW socket with CAN_RAW_FD_FRAMES enabled. It reads
// and writes both classic and FD frames.
type CanFdSocket struct {
	*socket
}

func OpenCanFd(name string) (*CanFdSocket, error) {
	addr, err := CanAddrFromIface(name)
	if err != nil {
		return nil, err
	}
	return OpenCanFdAddr(addr)
}

func OpenCanFdIndex(ifindex int) (*CanFdSocket, error) {
	return OpenCanFdAddr(NewCanAddr(ifindex))
}

func OpenCanFdAddr(addr CanAddr) (*CanFdSocket, error) {
	s, err := open(addr, true)
	if err != nil {
		return nil, err
	}
	return &CanFdSocket{s}, nil
}

func (s *CanFdSocket) Clone() (*CanFdSocket, error) {
	d, err := s.dup()
	if err != nil {
		return nil, err
	}
	return &CanFdSocket{d}, nil
}

// ReadFrame blocks for the next frame and returns a CanFrame, ErrorFrame or
// FdFrame depending on how many bytes the kernel delivered.
func (s *CanFdSocket) ReadFrame() (Frame, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.read()
}

func (s *CanFdSocket) ReadFrameTimestamp() (Frame, time.Time, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	defer runtime.KeepAlive(s)
	f, err := s.read()
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := lastTimestamp(s.fd)
	if err != nil {
		return nil, time.Time{}, err
	}
	return f, ts, nil
}

func (s *CanFdSocket) read() (Frame, error) {
	defer runtime.KeepAlive(s)
	fd, err := s.sysfd()
	if err != nil {
		return nil, err
	}
	var f FdFrame
	n, err := readFull(fd, fdFrameBytes(&f))
	if err != nil {
		return nil, err
	}
	switch n {
	case CAN_MTU:
		return classify(classicPrefix(&f)), nil
	case CANFD_MTU:
		return f, nil
	}
	return nil, os.NewSyscallError("read", unix.EIO)
}

// WriteFrame sends a classic, error or FD frame.
func (s *CanFdSocket) WriteFrame(f Frame) error {
	switch f := f.(type) {
	case CanFrame:
		return s.write(canFrameBytes(&f))
	case ErrorFrame:
		return s.write(canFrameBytes(&f.f))
	case FdFrame:
		return s.write(fdFrameBytes(&f))
	}
	return fmt.Errorf("%w: cannot send %T", ErrWrongFrameType, f)
}

func (s *CanFdSocket) WriteFrameInsist(f Frame) error {
	return insist(func() error { return s.WriteFrame(f) })
}
