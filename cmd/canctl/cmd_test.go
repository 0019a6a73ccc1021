package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/nl"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want socketcan.Filter
	}{
		{"123:7FF", socketcan.Filter{ID: 0x123, Mask: 0x7FF}},
		{"123~7FF", socketcan.Filter{ID: 0x123 | socketcan.CAN_INV_FILTER, Mask: 0x7FF}},
		{"12345678:1FFFFFFF", socketcan.Filter{
			ID:   0x12345678 | socketcan.CAN_EFF_FLAG,
			Mask: 0x1FFFFFFF | socketcan.CAN_EFF_FLAG,
		}},
	}
	for _, tt := range tests {
		got, err := parseFilter(tt.in)
		if err != nil {
			t.Fatalf("parseFilter(%q): %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("parseFilter(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
	for _, bad := range []string{"123", "xyz:7FF", "123:", "123~zz"} {
		if _, err := parseFilter(bad); err == nil {
			t.Errorf("parseFilter(%q) succeeded", bad)
		}
	}
}

func TestParsedFilterMatches(t *testing.T) {
	fs, err := parseFilters([]string{"100:700"})
	if err != nil {
		t.Fatal(err)
	}
	in, _ := socketcan.NewCanFrame(socketcan.MustID(0x1AB), nil)
	out, _ := socketcan.NewCanFrame(socketcan.MustID(0x2AB), nil)
	if !socketcan.MatchesAny(fs, in, false) || socketcan.MatchesAny(fs, out, false) {
		t.Fatal("filter selected the wrong frames")
	}
}

func TestParseSamplePoint(t *testing.T) {
	for in, want := range map[string]uint32{"0.875": 875, "875": 875, "0.8": 800} {
		got, err := parseSamplePoint(in)
		if err != nil || got != want {
			t.Errorf("parseSamplePoint(%q) = %d, %v", in, got, err)
		}
	}
	for _, bad := range []string{"1.5", "x", "-0.1"} {
		if _, err := parseSamplePoint(bad); err == nil {
			t.Errorf("parseSamplePoint(%q) succeeded", bad)
		}
	}
}

func TestSummary(t *testing.T) {
	state := nl.StateBusOff
	restart := uint32(100)
	var cm nl.CtrlModes
	cm.Set(nl.CtrlModeListenOnly, true)
	cm.Set(nl.CtrlModeFD, true)
	d := nl.InterfaceDetails{
		Name: "can0", Index: 3, Kind: "can", MTU: 72, IsUp: true,
		Can: &nl.CanParams{
			State:     &state,
			RestartMs: &restart,
			BitTiming: &nl.BitTiming{Bitrate: 500000, Sample_point: 875},
			CtrlMode:  &cm,
		},
	}
	got := summary(d)
	for _, want := range []string{
		"can0: index 3 kind can up mtu 72",
		"state BUS-OFF restart-ms 100",
		"bitrate 500000 sample-point 0.875",
		"ctrlmode <listen-only,fd>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if got := summary(nl.InterfaceDetails{Name: "vcan0", Kind: "vcan"}); got != "vcan0: index 0 kind vcan down mtu 0" {
		t.Errorf("vcan summary %q", got)
	}
}

func TestFrameKind(t *testing.T) {
	c, _ := socketcan.NewCanFrame(socketcan.MustID(1), nil)
	e, _ := socketcan.NewErrorFrame(socketcan.CAN_ERR_BUSOFF, nil)
	f, _ := socketcan.NewFdFrame(socketcan.MustID(1), nil, 0)
	if frameKind(c) != "classic" || frameKind(e) != "error" || frameKind(f) != "fd" {
		t.Fatal("wrong kinds")
	}
}
