package socketcan

import "fmt"

// ID is a CAN identifier, either an 11-bit standard id or a 29-bit
// extended id. The zero value is the standard id 0.
type ID struct {
	raw uint32
	ext bool
}

// StandardID returns the 11-bit identifier n.
func StandardID(n uint16) (ID, error) {
	if uint32(n) > CAN_SFF_MASK {
		return ID{}, fmt.Errorf("%w: standard id %#x", ErrIDTooLarge, n)
	}
	return ID{raw: uint32(n)}, nil
}

// ExtendedID returns the 29-bit identifier n. Values that would also fit a
// standard id are kept extended.
func ExtendedID(n uint32) (ID, error) {
	if n > CAN_EFF_MASK {
		return ID{}, fmt.Errorf("%w: extended id %#x", ErrIDTooLarge, n)
	}
	return ID{raw: n, ext: true}, nil
}

// IDFromRaw picks the category from the value: standard up to 0x7FF,
// extended above.
func IDFromRaw(n uint32) (ID, error) {
	if n <= CAN_SFF_MASK {
		return ID{raw: n}, nil
	}
	return ExtendedID(n)
}

// MustID is IDFromRaw for constants. It panics on out of range values.
func MustID(n uint32) ID {
	id, err := IDFromRaw(n)
	if err != nil {
		panic(err)
	}
	return id
}

// Raw returns the numeric identifier without any flag bits.
func (id ID) Raw() uint32 { return id.raw }

// IsExtended reports whether id is a 29-bit identifier.
func (id ID) IsExtended() bool { return id.ext }

// Mask returns the valid-bits mask of the id's category.
func (id ID) Mask() uint32 {
	if id.ext {
		return CAN_EFF_MASK
	}
	return CAN_SFF_MASK
}

// Add returns id+k, wrapping within the category mask.
func (id ID) Add(k uint32) ID {
	return ID{raw: (id.raw + k) & id.Mask(), ext: id.ext}
}

// word returns the id as it appears in the kernel id word.
func (id ID) word() uint32 {
	if id.ext {
		return id.raw | CAN_EFF_FLAG
	}
	return id.raw
}

// arbitration splits the id into the fields the bus compares, in order.
func (id ID) arbitration() (base uint32, ide uint32, extension uint32) {
	if !id.ext {
		return id.raw, 0, 0
	}
	return id.raw >> 18, 1, id.raw & (1<<18 - 1)
}

// Compare orders ids the way bus arbitration does: the lower value wins,
// and a standard id beats an extended id sharing its 11 base bits.
// It returns -1, 0 or +1.
func (id ID) Compare(other ID) int {
	ab, ai, ae := id.arbitration()
	bb, bi, be := other.arbitration()
	switch {
	case ab != bb:
		return cmpUint32(ab, bb)
	case ai != bi:
		return cmpUint32(ai, bi)
	default:
		return cmpUint32(ae, be)
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String formats the id the way candump does: 3 hex digits for standard
// ids, 8 for extended ones.
func (id ID) String() string {
	if id.ext {
		return fmt.Sprintf("%08X", id.raw)
	}
	return fmt.Sprintf("%03X", id.raw)
}
