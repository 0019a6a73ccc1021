package dump

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in       string
		raw      uint32
		ext      bool
		remote   bool
		isErr    bool
		fd       bool
		data     []byte
		wantText string
	}{
		{in: "100#DEADBEEF", raw: 0x100, data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{in: "7FF#", raw: 0x7FF, data: []byte{}},
		{in: "123#de.ad.be.ef", raw: 0x123, data: []byte{0xDE, 0xAD, 0xBE, 0xEF}, wantText: "123#DEADBEEF"},
		{in: "12345678#0102", raw: 0x12345678, ext: true, data: []byte{1, 2}},
		{in: "00000123#11", raw: 0x123, ext: true, data: []byte{0x11}},
		{in: "123#R", raw: 0x123, remote: true, data: []byte{}},
		{in: "123#R4", raw: 0x123, remote: true, data: []byte{}},
		{in: "014##1010307", raw: 0x14, fd: true, data: []byte{1, 3, 7}},
		{in: "20000004#0004000000000000", raw: 0x4, isErr: true, data: []byte{0, 4, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFrame(tt.in)
			if err != nil {
				t.Fatalf("ParseFrame: %v", err)
			}
			if f.IsError() != tt.isErr || f.IsRemote() != tt.remote {
				t.Fatalf("error=%v remote=%v", f.IsError(), f.IsRemote())
			}
			if tt.isErr {
				if f.ErrorBits() != tt.raw {
					t.Fatalf("error bits %#x", f.ErrorBits())
				}
			} else if f.RawID() != tt.raw || f.IsExtended() != tt.ext {
				t.Fatalf("id %#x ext=%v", f.RawID(), f.IsExtended())
			}
			if _, ok := f.(socketcan.FdFrame); ok != tt.fd {
				t.Fatalf("got %T", f)
			}
			if !tt.remote {
				if diff := cmp.Diff(tt.data, f.Data()); diff != "" {
					t.Fatalf("data (-want +got):\n%s", diff)
				}
			}
			want := tt.wantText
			if want == "" {
				want = tt.in
			}
			if got := FormatFrame(f); got != want {
				t.Fatalf("FormatFrame = %q, want %q", got, want)
			}
		})
	}
}

func TestParseFrameRemoteLen(t *testing.T) {
	f, err := ParseFrame("123#R4")
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 4 {
		t.Fatalf("len = %d", f.Len())
	}
}

func TestParseFrameFdFlags(t *testing.T) {
	f, err := ParseFrame("12345678##3")
	if err != nil {
		t.Fatal(err)
	}
	fd := f.(socketcan.FdFrame)
	if !fd.Flags().BRS() || !fd.Flags().ESI() || fd.Len() != 0 {
		t.Fatalf("got %v", fd)
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"100", errSyntax},
		{"10#11", errSyntax},
		{"1000#11", errSyntax},
		{"xyz#11", errSyntax},
		{"100#1", errSyntax},
		{"100#zz", errSyntax},
		{"100#R9", errSyntax},
		{"100##", errSyntax},
		{"100##g00", errSyntax},
		{"800#11", socketcan.ErrIDTooLarge},
		{"40000000#11", socketcan.ErrIDTooLarge},
		{"100#000102030405060708", socketcan.ErrTooMuchData},
	}
	for _, tt := range tests {
		if _, err := ParseFrame(tt.in); !errors.Is(err, tt.want) {
			t.Errorf("ParseFrame(%q) err = %v, want %v", tt.in, err, tt.want)
		}
	}
}
