package socketcan

import (
	"fmt"

	"github.com/josharian/native"
)

// Frame is implemented by CanFrame, ErrorFrame and FdFrame.
type Frame interface {
	// IDWord returns the id word as the kernel sees it, flags included.
	IDWord() uint32
	// RawID returns the id word masked with CAN_EFF_MASK.
	RawID() uint32
	// ID returns the tagged identifier.
	ID() ID
	// Data returns the payload. Remote frames have none.
	Data() []byte
	// Len returns the declared payload length.
	Len() int
	IsExtended() bool
	IsRemote() bool
	IsError() bool
	// ErrorBits returns the id word masked with CAN_ERR_MASK.
	ErrorBits() uint32
	String() string
}

// CanFrame is a classic CAN 2.0 data or remote frame. Its memory layout is
// struct can_frame from <linux/can.h>, so sockets read and write it with a
// single copy.
type CanFrame struct {
	id   uint32
	len  uint8
	pad  uint8 // padding
	res0 uint8 // reserved
	len8 uint8 // len8_dlc, used with CAN_CTRLMODE_CC_LEN8_DLC
	data [CAN_MAX_DLEN]byte
}

// NewCanFrame builds a data frame. The EFF flag follows the id's category.
func NewCanFrame(id ID, data []byte) (CanFrame, error) {
	if len(data) > CAN_MAX_DLEN {
		return CanFrame{}, fmt.Errorf("%w: %d bytes, classic frames carry at most %d", ErrTooMuchData, len(data), CAN_MAX_DLEN)
	}
	f := CanFrame{id: id.word(), len: uint8(len(data))}
	copy(f.data[:], data)
	return f, nil
}

// NewRemoteFrame builds a remote transmission request asking for dlc bytes.
func NewRemoteFrame(id ID, dlc int) (CanFrame, error) {
	if dlc < 0 || dlc > CAN_MAX_DLEN {
		return CanFrame{}, fmt.Errorf("%w: remote dlc %d", ErrTooMuchData, dlc)
	}
	return CanFrame{id: id.word() | CAN_RTR_FLAG, len: uint8(dlc)}, nil
}

func (f CanFrame) IDWord() uint32 { return f.id }
func (f CanFrame) RawID() uint32 { return f.id & CAN_EFF_MASK }
func (f CanFrame) ID() ID { return idFromWord(f.id) }
func (f CanFrame) Len() int { return int(f.len) }
func (f CanFrame) IsExtended() bool { return f.id&CAN_EFF_FLAG != 0 }
func (f CanFrame) IsRemote() bool { return f.id&CAN_RTR_FLAG != 0 }
func (f CanFrame) IsError() bool { return f.id&CAN_ERR_FLAG != 0 }
func (f CanFrame) ErrorBits() uint32 { return f.id & CAN_ERR_MASK }
func (f CanFrame) IsDataFrame() bool { return !f.IsRemote() && !f.IsError() }
func (f CanFrame) Len8DLC() uint8 { return f.len8 }

func (f CanFrame) Data() []byte {
	if f.IsRemote() {
		return f.data[:0]
	}
	return f.data[:min(int(f.len), CAN_MAX_DLEN)]
}

// ToFd converts f into an FD frame with no FD flags set. Remote frames lose
// their RTR bit since FD has no remote frames.
func (f CanFrame) ToFd() FdFrame {
	fd := FdFrame{id: f.id &^ CAN_RTR_FLAG}
	data := f.Data()
	fd.len = uint8(len(data))
	copy(fd.data[:], data)
	return fd
}

func (f CanFrame) String() string {
	if f.IsRemote() {
		if f.len == 0 {
			return f.ID().String() + "#R"
		}
		return fmt.Sprintf("%s#R%d", f.ID(), f.len)
	}
	return fmt.Sprintf("%s#%X", f.ID(), f.Data())
}

// MarshalBinary encodes f as struct can_frame in host byte order.
func (f CanFrame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CAN_MTU)
	native.Endian.PutUint32(buf[0:4], f.id)
	buf[4] = f.len
	buf[5] = f.pad
	buf[6] = f.res0
	buf[7] = f.len8
	copy(buf[8:], f.data[:])
	return buf, nil
}

// UnmarshalBinary decodes struct can_frame. It accepts error frames too;
// use FrameFromBytes to get them typed as ErrorFrame.
func (f *CanFrame) UnmarshalBinary(b []byte) error {
	if len(b) != CAN_MTU {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrWrongFrameType, CAN_MTU, len(b))
	}
	f.id = native.Endian.Uint32(b[0:4])
	f.len = b[4]
	f.pad = b[5]
	f.res0 = b[6]
	f.len8 = b[7]
	copy(f.data[:], b[8:])
	return nil
}

// ErrorFrame is a classic frame with the ERR flag set, generated by the
// kernel to report bus errors. Use Decode to classify it.
type ErrorFrame struct {
	f CanFrame
}

// NewErrorFrame builds an error frame from class bits and up to 8 bytes of
// class specific data.
func NewErrorFrame(bits uint32, data []byte) (ErrorFrame, error) {
	if bits&^CAN_ERR_MASK != 0 {
		return ErrorFrame{}, fmt.Errorf("%w: error bits %#x", ErrIDTooLarge, bits)
	}
	if len(data) > CAN_ERR_DLC {
		return ErrorFrame{}, fmt.Errorf("%w: %d bytes of error data", ErrTooMuchData, len(data))
	}
	e := ErrorFrame{f: CanFrame{id: bits | CAN_ERR_FLAG, len: CAN_ERR_DLC}}
	copy(e.f.data[:], data)
	return e, nil
}

// ErrorFrameFromCanFrame reinterprets f, which must carry the ERR flag.
func ErrorFrameFromCanFrame(f CanFrame) (ErrorFrame, error) {
	if !f.IsError() {
		return ErrorFrame{}, ErrNotErrorFrame
	}
	return ErrorFrame{f: f}, nil
}

func (e ErrorFrame) IDWord() uint32 { return e.f.id }
func (e ErrorFrame) RawID() uint32 { return e.f.RawID() }
func (e ErrorFrame) ID() ID { return e.f.ID() }
func (e ErrorFrame) Data() []byte { return e.f.data[:min(int(e.f.len), CAN_MAX_DLEN)] }
func (e ErrorFrame) Len() int { return int(e.f.len) }
func (e ErrorFrame) IsExtended() bool { return e.f.IsExtended() }
func (e ErrorFrame) IsRemote() bool { return false }
func (e ErrorFrame) IsError() bool { return true }
func (e ErrorFrame) ErrorBits() uint32 { return e.f.ErrorBits() }

// CanFrame returns the underlying classic frame.
func (e ErrorFrame) CanFrame() CanFrame { return e.f }

// Decode classifies the error. It never fails; sub-code decoding problems
// are reported in the DecodeErr field of the result.
func (e ErrorFrame) Decode() *CanError { return decodeErrorFrame(e) }

func (e ErrorFrame) String() string {
	return fmt.Sprintf("%08X#%X", e.f.id&(CAN_ERR_FLAG|CAN_ERR_MASK), e.Data())
}

func (e ErrorFrame) MarshalBinary() ([]byte, error) { return e.f.MarshalBinary() }

func (e *ErrorFrame) UnmarshalBinary(b []byte) error {
	var f CanFrame
	if err := f.UnmarshalBinary(b); err != nil {
		return err
	}
	if !f.IsError() {
		return ErrNotErrorFrame
	}
	e.f = f
	return nil
}

// FdFlags is the flags byte of an FD frame.
type FdFlags uint8

const (
	FdFlagBRS FdFlags = CANFD_BRS
	FdFlagESI FdFlags = CANFD_ESI
)

func (fl FdFlags) BRS() bool { return fl&FdFlagBRS != 0 }
func (fl FdFlags) ESI() bool { return fl&FdFlagESI != 0 }

// FdFrame is a CAN FD frame laid out as struct canfd_frame.
type FdFrame struct {
	id    uint32
	len   uint8
	flags uint8
	res0  uint8
	res1  uint8
	data  [CANFD_MAX_DLEN]byte
}

// NewFdFrame builds an FD data frame. There is no FD remote frame.
func NewFdFrame(id ID, data []byte, flags FdFlags) (FdFrame, error) {
	if len(data) > CANFD_MAX_DLEN {
		return FdFrame{}, fmt.Errorf("%w: %d bytes, FD frames carry at most %d", ErrTooMuchData, len(data), CANFD_MAX_DLEN)
	}
	f := FdFrame{id: id.word(), len: uint8(len(data)), flags: uint8(flags)}
	copy(f.data[:], data)
	return f, nil
}

func (f FdFrame) IDWord() uint32 { return f.id }
func (f FdFrame) RawID() uint32 { return f.id & CAN_EFF_MASK }
func (f FdFrame) ID() ID { return idFromWord(f.id) }
func (f FdFrame) Data() []byte { return f.data[:min(int(f.len), CANFD_MAX_DLEN)] }
func (f FdFrame) Len() int { return int(f.len) }
func (f FdFrame) IsExtended() bool { return f.id&CAN_EFF_FLAG != 0 }
func (f FdFrame) IsRemote() bool { return false }
func (f FdFrame) IsError() bool { return f.id&CAN_ERR_FLAG != 0 }
func (f FdFrame) ErrorBits() uint32 { return f.id & CAN_ERR_MASK }
func (f FdFrame) Flags() FdFlags { return FdFlags(f.flags) }

// WithFlags returns a copy of f carrying flags.
func (f FdFrame) WithFlags(flags FdFlags) FdFrame {
	f.flags = uint8(flags)
	return f
}

// ToClassic converts f into a classic data frame. It fails with
// ErrTooMuchData when the payload does not fit in 8 bytes.
func (f FdFrame) ToClassic() (CanFrame, error) {
	if f.len > CAN_MAX_DLEN {
		return CanFrame{}, fmt.Errorf("%w: %d bytes do not fit a classic frame", ErrTooMuchData, f.len)
	}
	c := CanFrame{id: f.id, len: f.len}
	copy(c.data[:], f.data[:CAN_MAX_DLEN])
	return c, nil
}

func (f FdFrame) String() string {
	return fmt.Sprintf("%s##%X %X", f.ID(), f.flags, f.Data())
}

// MarshalBinary encodes f as struct canfd_frame in host byte order.
func (f FdFrame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CANFD_MTU)
	native.Endian.PutUint32(buf[0:4], f.id)
	buf[4] = f.len
	buf[5] = f.flags
	buf[6] = f.res0
	buf[7] = f.res1
	copy(buf[8:], f.data[:])
	return buf, nil
}

func (f *FdFrame) UnmarshalBinary(b []byte) error {
	if len(b) != CANFD_MTU {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrWrongFrameType, CANFD_MTU, len(b))
	}
	f.id = native.Endian.Uint32(b[0:4])
	f.len = b[4]
	f.flags = b[5]
	f.res0 = b[6]
	f.res1 = b[7]
	copy(f.data[:], b[8:])
	return nil
}

// FrameFromBytes decodes a kernel buffer, dispatching on its size: 16 bytes
// is a classic (or error) frame, 72 bytes an FD frame.
func FrameFromBytes(b []byte) (Frame, error) {
	switch len(b) {
	case CAN_MTU:
		var f CanFrame
		if err := f.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return classify(f), nil
	case CANFD_MTU:
		var f FdFrame
		if err := f.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %d bytes is neither %d nor %d", ErrWrongFrameType, len(b), CAN_MTU, CANFD_MTU)
}

// classify returns error frames as ErrorFrame and everything else as is.
func classify(f CanFrame) Frame {
	if f.IsError() {
		return ErrorFrame{f: f}
	}
	return f
}

func idFromWord(word uint32) ID {
	if word&CAN_EFF_FLAG != 0 {
		return ID{raw: word & CAN_EFF_MASK, ext: true}
	}
	return ID{raw: word & CAN_SFF_MASK}
}
