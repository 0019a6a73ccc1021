//go:build linux

package socketcan

import (
	"errors"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func setsockoptCanInt(fd, opt, v int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, SOL_CAN_RAW, opt, v))
}

func getsockoptCanInt(fd, opt int) (int, error) {
	v, err := unix.GetsockoptInt(fd, SOL_CAN_RAW, opt)
	return v, os.NewSyscallError("getsockopt", err)
}

func setTimeout(fd, opt int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return os.NewSyscallError("setsockopt", unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv))
}

func getTimeout(fd, opt int) (time.Duration, error) {
	tv, err := unix.GetsockoptTimeval(fd, unix.SOL_SOCKET, opt)
	if err != nil {
		return 0, os.NewSyscallError("getsockopt", err)
	}
	return time.Duration(tv.Nano()), nil
}

func toCanFilters(fs []Filter) []unix.CanFilter {
	out := make([]unix.CanFilter, len(fs))
	for i, f := range fs {
		out[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
	}
	return out
}

// lastTimestamp asks the kernel when the last frame read from fd arrived
// (SIOCGSTAMPNS).
func lastTimestamp(fd int) (time.Time, error) {
	var ts unix.Timespec
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCGSTAMPNS, uintptr(unsafe.Pointer(&ts)))
	if errno != 0 {
		return time.Time{}, os.NewSyscallError("ioctl", errno)
	}
	return time.Unix(ts.Unix()), nil
}

func readFull(fd int, b []byte) (int, error) {
	for {
		n, err := unix.Read(fd, b)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		return n, nil
	}
}

// writeFull performs one write and fails unless all of b went out.
func writeFull(fd int, b []byte) error {
	n, err := unix.Write(fd, b)
	if err != nil {
		return os.NewSyscallError("write", err)
	}
	if n != len(b) {
		return os.NewSyscallError("write", unix.EIO)
	}
	return nil
}
