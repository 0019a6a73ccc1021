package socketcan

// Filter is a kernel receive filter. A frame passes when
// (frame id word ^ ID) & Mask == 0. Setting CAN_INV_FILTER in ID inverts
// the match.
type Filter struct {
	ID   uint32
	Mask uint32
}

// NewFilter returns a filter with the given id and mask taken verbatim.
func NewFilter(id, mask uint32) Filter {
	return Filter{ID: id, Mask: mask}
}

// NewStdFilter matches standard frames with exactly this id.
func NewStdFilter(id uint16) Filter {
	return Filter{
		ID:   uint32(id) & CAN_SFF_MASK,
		Mask: CAN_SFF_MASK | CAN_EFF_FLAG,
	}
}

// NewStdInvFilter matches every frame except standard frames with this id.
func NewStdInvFilter(id uint16) Filter {
	f := NewStdFilter(id)
	f.ID |= CAN_INV_FILTER
	return f
}

// NewExtFilter matches extended frames with exactly this id.
func NewExtFilter(id uint32) Filter {
	return Filter{
		ID:   id&CAN_EFF_MASK | CAN_EFF_FLAG,
		Mask: CAN_EFF_MASK | CAN_EFF_FLAG,
	}
}

// NewExtInvFilter matches every frame except extended frames with this id.
func NewExtInvFilter(id uint32) Filter {
	f := NewExtFilter(id)
	f.ID |= CAN_INV_FILTER
	return f
}

// AcceptAllFilter is the single filter that lets every frame through.
var AcceptAllFilter = Filter{}

// Inverted reports whether f has CAN_INV_FILTER set.
func (f Filter) Inverted() bool { return f.ID&CAN_INV_FILTER != 0 }

// Matches evaluates f against fr the way the kernel does. Error frames never
// match; they are selected by the error filter instead.
func (f Filter) Matches(fr Frame) bool {
	if fr.IsError() {
		return false
	}
	id := f.ID &^ CAN_INV_FILTER
	hit := (fr.IDWord()^id)&f.Mask == 0
	return hit != f.Inverted()
}

// MatchesAny reports whether fr passes a socket carrying fs, where the
// filters are ORed, or ANDed when join is set. An empty set drops everything.
func MatchesAny(fs []Filter, fr Frame, join bool) bool {
	if len(fs) == 0 {
		return false
	}
	for _, f := range fs {
		m := f.Matches(fr)
		if join && !m {
			return false
		}
		if !join && m {
			return true
		}
	}
	return join
}

// ErrorMask combines error class bits (CAN_ERR_TX_TIMEOUT, CAN_ERR_BUSOFF,
// ...) into a value for SetErrorFilter.
func ErrorMask(classes ...uint32) uint32 {
	var m uint32
	for _, c := range classes {
		m |= c
	}
	return m & CAN_ERR_MASK
}
