package socketcan

import (
	"errors"
	"testing"
)

func TestIDFromRawCategory(t *testing.T) {
	tests := []struct {
		raw uint32
		ext bool
	}{
		{raw: 0, ext: false},
		{raw: 0x123, ext: false},
		{raw: 0x7FF, ext: false},
		{raw: 0x800, ext: true},
		{raw: 0x1FFFFFFF, ext: true},
	}
	for _, tt := range tests {
		id, err := IDFromRaw(tt.raw)
		if err != nil {
			t.Fatalf("IDFromRaw(%#x): %v", tt.raw, err)
		}
		if id.IsExtended() != tt.ext {
			t.Errorf("IDFromRaw(%#x).IsExtended() = %v, want %v", tt.raw, id.IsExtended(), tt.ext)
		}
		if id.Raw() != tt.raw {
			t.Errorf("IDFromRaw(%#x).Raw() = %#x", tt.raw, id.Raw())
		}
	}
}

func TestIDTooLarge(t *testing.T) {
	if _, err := StandardID(0x800); !errors.Is(err, ErrIDTooLarge) {
		t.Errorf("StandardID(0x800) err = %v", err)
	}
	if _, err := ExtendedID(0x20000000); !errors.Is(err, ErrIDTooLarge) {
		t.Errorf("ExtendedID(0x20000000) err = %v", err)
	}
	if _, err := IDFromRaw(0xFFFFFFFF); !errors.Is(err, ErrIDTooLarge) {
		t.Errorf("IDFromRaw(0xFFFFFFFF) err = %v", err)
	}
}

func TestExtendedIDBelowStandardRange(t *testing.T) {
	id, err := ExtendedID(0x10)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsExtended() || id.String() != "00000010" {
		t.Fatalf("got %v (extended=%v)", id, id.IsExtended())
	}
}

func TestIDAddWraps(t *testing.T) {
	std := MustID(0x7FF)
	if got := std.Add(1); got != MustID(0) {
		t.Errorf("standard 0x7FF + 1 = %v", got)
	}
	ext, _ := ExtendedID(0x1FFFFFFF)
	zero, _ := ExtendedID(0)
	if got := ext.Add(1); got != zero {
		t.Errorf("extended 0x1FFFFFFF + 1 = %v", got)
	}
	if got := MustID(0x100).Add(0x23); got.Raw() != 0x123 {
		t.Errorf("0x100 + 0x23 = %v", got)
	}
}

func TestIDCompare(t *testing.T) {
	ext := func(n uint32) ID {
		id, err := ExtendedID(n)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	tests := []struct {
		name string
		a, b ID
		want int
	}{
		{"lower standard wins", MustID(0x100), MustID(0x200), -1},
		{"equal", MustID(0x100), MustID(0x100), 0},
		{"standard beats extended with same base", MustID(0x100), ext(0x100 << 18), -1},
		{"extended with lower base beats standard", ext(0x0FF << 18), MustID(0x100), -1},
		{"extension bits break ties", ext(0x100<<18 | 2), ext(0x100<<18 | 1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Fatalf("Compare = %d, want %d", got, tt.want)
			}
			if got := tt.b.Compare(tt.a); got != -tt.want {
				t.Fatalf("reverse Compare = %d, want %d", got, -tt.want)
			}
		})
	}
}

func TestIDString(t *testing.T) {
	if s := MustID(0x14).String(); s != "014" {
		t.Errorf("got %q", s)
	}
	if s := MustID(0x12345678).String(); s != "12345678" {
		t.Errorf("got %q", s)
	}
}
