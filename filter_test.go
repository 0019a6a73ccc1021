package socketcan

import "testing"

func TestFilterMatchesRule(t *testing.T) {
	ids := []uint32{0x000, 0x100, 0x123, 0x1FF, 0x7FF, 0x800, 0x12345, 0x1FFFFFFF}
	filters := []Filter{
		NewFilter(0x123, 0x7FF),
		NewFilter(0x100, 0x700),
		NewFilter(0, 0),
		NewFilter(0x12345, CAN_EFF_MASK),
	}
	for _, flt := range filters {
		for _, raw := range ids {
			f, err := NewCanFrame(MustID(raw), nil)
			if err != nil {
				t.Fatal(err)
			}
			want := (f.RawID()^flt.ID)&flt.Mask == 0
			if got := flt.Matches(f); got != want {
				t.Errorf("filter %#x/%#x frame %v: got %v, want %v", flt.ID, flt.Mask, f, got, want)
			}
		}
	}
}

func TestStdExtFilters(t *testing.T) {
	std, _ := NewCanFrame(MustID(0x123), nil)
	ext, _ := ExtendedID(0x123)
	extFrame, _ := NewCanFrame(ext, nil)
	other, _ := NewCanFrame(MustID(0x124), nil)

	tests := []struct {
		name string
		flt  Filter
		f    Frame
		want bool
	}{
		{"std matches std", NewStdFilter(0x123), std, true},
		{"std rejects ext with same number", NewStdFilter(0x123), extFrame, false},
		{"std rejects other", NewStdFilter(0x123), other, false},
		{"ext matches ext", NewExtFilter(0x123), extFrame, true},
		{"ext rejects std", NewExtFilter(0x123), std, false},
		{"inverted std", NewStdInvFilter(0x123), other, true},
		{"inverted std rejects id", NewStdInvFilter(0x123), std, false},
		{"inverted ext", NewExtInvFilter(0x123), extFrame, false},
		{"accept all", AcceptAllFilter, extFrame, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flt.Matches(tt.f); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterIgnoresErrorFrames(t *testing.T) {
	e, _ := NewErrorFrame(CAN_ERR_BUSOFF, nil)
	if AcceptAllFilter.Matches(e) {
		t.Fatal("error frames are selected by the error filter only")
	}
}

func TestMatchesAny(t *testing.T) {
	f, _ := NewCanFrame(MustID(0x123), nil)
	a := NewFilter(0x100, 0x700)
	b := NewFilter(0x023, 0x0FF)
	c := NewFilter(0x200, 0x700)

	if MatchesAny(nil, f, false) {
		t.Error("empty set must drop")
	}
	if !MatchesAny([]Filter{c, a}, f, false) {
		t.Error("OR: one match is enough")
	}
	if !MatchesAny([]Filter{a, b}, f, true) {
		t.Error("AND: both match")
	}
	if MatchesAny([]Filter{a, c}, f, true) {
		t.Error("AND: one mismatch rejects")
	}
}

func TestErrorMask(t *testing.T) {
	if got := ErrorMask(CAN_ERR_BUSOFF, CAN_ERR_ACK); got != 0x60 {
		t.Fatalf("got %#x", got)
	}
	if got := ErrorMask(CAN_ERR_FLAG | CAN_ERR_BUSOFF); got != CAN_ERR_BUSOFF {
		t.Fatalf("flag bits must be stripped, got %#x", got)
	}
}
