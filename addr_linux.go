//go:build linux

package socketcan

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/josharian/native"
	"golang.org/x/sys/unix"
)

// J1939Addr is the J1939 part of a CAN socket address.
type J1939Addr struct {
	Name uint64
	PGN  uint32
	Addr uint8
}

// CanAddr is a CAN socket address: an interface index (0 binds to every
// CAN interface) plus the optional ISO-TP or J1939 sub-address.
type CanAddr struct {
	Ifindex int
	// ISO-TP receive and transmit ids.
	RxID, TxID uint32
	J1939      *J1939Addr
}

// NewCanAddr returns the raw address of the interface with index ifindex.
func NewCanAddr(ifindex int) CanAddr { return CanAddr{Ifindex: ifindex} }

// CanAddrFromIface resolves name to its interface index.
func CanAddrFromIface(name string) (CanAddr, error) {
	idx, err := InterfaceIndex(name)
	if err != nil {
		return CanAddr{}, err
	}
	return CanAddr{Ifindex: idx}, nil
}

func NewIsoTpAddr(ifindex int, rxID, txID uint32) CanAddr {
	return CanAddr{Ifindex: ifindex, RxID: rxID, TxID: txID}
}

func NewJ1939Addr(ifindex int, name uint64, pgn uint32, addr uint8) CanAddr {
	return CanAddr{Ifindex: ifindex, J1939: &J1939Addr{Name: name, PGN: pgn, Addr: addr}}
}

// Sockaddr converts a into the form unix.Bind and unix.Sendto take.
func (a CanAddr) Sockaddr() unix.Sockaddr {
	if a.J1939 != nil {
		return &unix.SockaddrCANJ1939{
			Ifindex: a.Ifindex,
			Name:    a.J1939.Name,
			PGN:     a.J1939.PGN,
			Addr:    a.J1939.Addr,
		}
	}
	return &unix.SockaddrCAN{Ifindex: a.Ifindex, RxID: a.RxID, TxID: a.TxID}
}

// RawSockaddr lays a out as struct sockaddr_can inside the generic
// sockaddr container and returns it with its length.
func (a CanAddr) RawSockaddr() (unix.RawSockaddrAny, uint32) {
	var raw unix.RawSockaddrAny
	b := (*[unix.SizeofSockaddrAny]byte)(unsafe.Pointer(&raw))[:unix.SizeofSockaddrCAN]
	native.Endian.PutUint16(b[0:2], unix.AF_CAN)
	native.Endian.PutUint32(b[4:8], uint32(int32(a.Ifindex)))
	if a.J1939 != nil {
		native.Endian.PutUint64(b[8:16], a.J1939.Name)
		native.Endian.PutUint32(b[16:20], a.J1939.PGN)
		b[20] = a.J1939.Addr
	} else {
		native.Endian.PutUint32(b[8:12], a.RxID)
		native.Endian.PutUint32(b[12:16], a.TxID)
	}
	return raw, unix.SizeofSockaddrCAN
}

// CanAddrFromRaw decodes a struct sockaddr_can. The protocol is not
// recorded in the address, so the sub-address is read in its ISO-TP form.
func CanAddrFromRaw(raw *unix.RawSockaddrAny) (CanAddr, error) {
	b := (*[unix.SizeofSockaddrAny]byte)(unsafe.Pointer(raw))[:unix.SizeofSockaddrCAN]
	if fam := native.Endian.Uint16(b[0:2]); fam != unix.AF_CAN {
		return CanAddr{}, fmt.Errorf("socketcan: address family %d is not AF_CAN", fam)
	}
	return CanAddr{
		Ifindex: int(int32(native.Endian.Uint32(b[4:8]))),
		RxID:    native.Endian.Uint32(b[8:12]),
		TxID:    native.Endian.Uint32(b[12:16]),
	}, nil
}

// CanAddrFromSockaddr converts what recvfrom reports back into a CanAddr.
func CanAddrFromSockaddr(sa unix.Sockaddr) (CanAddr, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrCAN:
		return CanAddr{Ifindex: sa.Ifindex, RxID: sa.RxID, TxID: sa.TxID}, true
	case *unix.SockaddrCANJ1939:
		return NewJ1939Addr(sa.Ifindex, sa.Name, sa.PGN, sa.Addr), true
	}
	return CanAddr{}, false
}

// InterfaceIndex resolves an interface name with SIOCGIFINDEX. Unknown
// names fail with ENODEV.
func InterfaceIndex(name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, fmt.Errorf("interface %q: %w", name, err)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, os.NewSyscallError("socket", err)
	}
	defer unix.Close(fd)
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifr); err != nil {
		return 0, fmt.Errorf("interface %q: %w", name, os.NewSyscallError("ioctl", err))
	}
	return int(ifr.Uint32()), nil
}
