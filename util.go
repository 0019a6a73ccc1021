package socketcan

import "unsafe"

// The frame types must stay exactly as large as their kernel counterparts.
var (
	_ [CAN_MTU - unsafe.Sizeof(CanFrame{})]byte
	_ [unsafe.Sizeof(CanFrame{}) - CAN_MTU]byte
	_ [CANFD_MTU - unsafe.Sizeof(FdFrame{})]byte
	_ [unsafe.Sizeof(FdFrame{}) - CANFD_MTU]byte
)

// canFrameBytes views f as the buffer handed to read(2) and write(2).
func canFrameBytes(f *CanFrame) []byte {
	return (*[CAN_MTU]byte)(unsafe.Pointer(f))[:]
}

func fdFrameBytes(f *FdFrame) []byte {
	return (*[CANFD_MTU]byte)(unsafe.Pointer(f))[:]
}

// classicPrefix reinterprets the first 16 bytes of an FD buffer, which is
// what the kernel fills when it delivers a classic frame to an FD socket.
func classicPrefix(f *FdFrame) CanFrame {
	return *(*CanFrame)(unsafe.Pointer(f))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
