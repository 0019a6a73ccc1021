//go:build linux

package nl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/mdlayher/netlink/nltest"
	"golang.org/x/sys/unix"
)

// withConn points dial at an nltest connection served by fn.
func withConn(t *testing.T, fn nltest.Func) {
	t.Helper()
	prev := dial
	dial = func() (*netlink.Conn, error) { return nltest.Dial(fn), nil }
	t.Cleanup(func() { dial = prev })
}

// noDial fails the test if a request is sent.
func noDial(t *testing.T) {
	withConn(t, func([]netlink.Message) ([]netlink.Message, error) {
		t.Fatal("unexpected netlink request")
		return nil, nil
	})
}

// captureAck records the request and acknowledges it.
func captureAck(t *testing.T) *netlink.Message {
	var got netlink.Message
	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		got = reqs[0]
		return nltest.Error(0, reqs)
	})
	return &got
}

type decodedRequest struct {
	ifi   ifInfoMsg
	name  string
	mtu   uint32
	kind  string
	attrs map[CanAttr][]byte
	top   map[uint16][]byte
}

func decodeRequest(t *testing.T, m *netlink.Message) decodedRequest {
	t.Helper()
	var d decodedRequest
	if err := d.ifi.unmarshalBinary(m.Data[:unix.SizeofIfInfomsg]); err != nil {
		t.Fatal(err)
	}
	d.attrs = map[CanAttr][]byte{}
	d.top = map[uint16][]byte{}
	ad, err := netlink.NewAttributeDecoder(m.Data[unix.SizeofIfInfomsg:])
	if err != nil {
		t.Fatal(err)
	}
	for ad.Next() {
		d.top[ad.Type()] = ad.Bytes()
		switch ad.Type() {
		case unix.IFLA_IFNAME:
			d.name = ad.String()
		case unix.IFLA_MTU:
			d.mtu = ad.Uint32()
		case unix.IFLA_LINKINFO:
			ad.Nested(func(nad *netlink.AttributeDecoder) error {
				for nad.Next() {
					switch nad.Type() {
					case unix.IFLA_INFO_KIND:
						d.kind = nad.String()
					case unix.IFLA_INFO_DATA:
						nad.Nested(func(cad *netlink.AttributeDecoder) error {
							for cad.Next() {
								d.attrs[CanAttr(cad.Type())] = cad.Bytes()
							}
							return nil
						})
					}
				}
				return nil
			})
		}
	}
	if err := ad.Err(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSetBitrateRequestLayout(t *testing.T) {
	if native.IsBigEndian {
		t.Skip("reference capture is little endian")
	}
	req := captureAck(t)
	if err := New(5).SetBitrate(500_000, 875); err != nil {
		t.Fatalf("SetBitrate: %v", err)
	}

	want := []byte{
		// ifinfomsg: family, pad, type, index 5, flags, change
		0x00, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// IFLA_LINKINFO | NLA_F_NESTED
		0x34, 0x00, 0x12, 0x80,
		// IFLA_INFO_KIND "can"
		0x08, 0x00, 0x01, 0x00, 0x63, 0x61, 0x6e, 0x00,
		// IFLA_INFO_DATA | NLA_F_NESTED
		0x28, 0x00, 0x02, 0x80,
		// IFLA_CAN_BITTIMING
		0x24, 0x00, 0x01, 0x00,
		0x20, 0xa1, 0x07, 0x00, // bitrate 500000
		0x6b, 0x03, 0x00, 0x00, // sample point 875
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if diff := cmp.Diff(want, req.Data); diff != "" {
		t.Fatalf("unexpected request bytes (-want +got):\n%s", diff)
	}
	if req.Header.Type != unix.RTM_NEWLINK {
		t.Fatalf("type = %v", req.Header.Type)
	}
	if want := netlink.Request | netlink.Acknowledge; req.Header.Flags != want {
		t.Fatalf("flags = %v, want %v", req.Header.Flags, want)
	}
}

func TestSetBitrateInvalid(t *testing.T) {
	noDial(t)
	tests := []struct {
		rate, sp uint32
	}{
		{0, 0},
		{1_000_001, 0},
		{500_000, 1000},
	}
	for _, tt := range tests {
		var pe *ParamError
		if err := New(1).SetBitrate(tt.rate, tt.sp); !errors.As(err, &pe) {
			t.Errorf("SetBitrate(%d, %d) err = %v, want ParamError", tt.rate, tt.sp, err)
		}
	}
}

func TestBringUpDown(t *testing.T) {
	req := captureAck(t)

	if err := New(7).BringUp(); err != nil {
		t.Fatal(err)
	}
	d := decodeRequest(t, req)
	if diff := cmp.Diff(ifInfoMsg{Index: 7, Flags: unix.IFF_UP, Change: unix.IFF_UP}, d.ifi); diff != "" {
		t.Fatalf("up (-want +got):\n%s", diff)
	}

	if err := New(7).BringDown(); err != nil {
		t.Fatal(err)
	}
	d = decodeRequest(t, req)
	if diff := cmp.Diff(ifInfoMsg{Index: 7, Change: unix.IFF_UP}, d.ifi); diff != "" {
		t.Fatalf("down (-want +got):\n%s", diff)
	}
}

func TestCreate(t *testing.T) {
	req := captureAck(t)
	ifc, err := Create("info", 42, "vcan")
	if err != nil {
		t.Fatal(err)
	}
	if ifc.Index() != 42 {
		t.Fatalf("index = %d", ifc.Index())
	}
	want := netlink.Request | netlink.Acknowledge | netlink.Create | netlink.Excl
	if req.Header.Flags != want {
		t.Fatalf("flags = %v, want %v", req.Header.Flags, want)
	}
	d := decodeRequest(t, req)
	if d.name != "info" || d.kind != "vcan" || len(d.attrs) != 0 {
		t.Fatalf("decoded %+v", d)
	}
}

func TestCreateEmptyName(t *testing.T) {
	noDial(t)
	var pe *ParamError
	if _, err := Create("", 0, "vcan"); !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	req := captureAck(t)
	if err := New(9).Delete(); err != nil {
		t.Fatal(err)
	}
	if req.Header.Type != unix.RTM_DELLINK {
		t.Fatalf("type = %v", req.Header.Type)
	}
	if d := decodeRequest(t, req); d.ifi.Index != 9 {
		t.Fatalf("index = %d", d.ifi.Index)
	}
}

func TestCanParamSetters(t *testing.T) {
	tests := []struct {
		name string
		call func(Interface) error
		attr CanAttr
		want []byte
	}{
		{
			name: "ctrlmode on",
			call: func(i Interface) error { return i.SetCtrlMode(CtrlModeListenOnly, true) },
			attr: AttrCtrlMode,
			want: append(nlenc.Uint32Bytes(0x02), nlenc.Uint32Bytes(0x02)...),
		},
		{
			name: "ctrlmode off",
			call: func(i Interface) error { return i.SetCtrlMode(CtrlModeFD, false) },
			attr: AttrCtrlMode,
			want: append(nlenc.Uint32Bytes(0x20), nlenc.Uint32Bytes(0)...),
		},
		{
			name: "ctrlmodes bulk",
			call: func(i Interface) error {
				var cm CtrlModes
				cm.Set(CtrlModeLoopback, true)
				cm.Set(CtrlModeOneShot, false)
				cm.Set(CtrlModeCCLen8DLC, true)
				return i.SetCtrlModes(cm)
			},
			attr: AttrCtrlMode,
			want: append(nlenc.Uint32Bytes(0x109), nlenc.Uint32Bytes(0x101)...),
		},
		{
			name: "restart-ms",
			call: func(i Interface) error { return i.SetRestartMs(100) },
			attr: AttrRestartMs,
			want: nlenc.Uint32Bytes(100),
		},
		{
			name: "restart",
			call: func(i Interface) error { return i.Restart() },
			attr: AttrRestart,
			want: nlenc.Uint32Bytes(1),
		},
		{
			name: "termination",
			call: func(i Interface) error { return i.SetTermination(120) },
			attr: AttrTermination,
			want: nlenc.Uint16Bytes(120),
		},
		{
			name: "data bitrate",
			call: func(i Interface) error { return i.SetDataBitrate(2_000_000, 750) },
			attr: AttrDataBitTiming,
			want: (&BitTiming{Bitrate: 2_000_000, Sample_point: 750}).marshalBinary(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := captureAck(t)
			if err := tt.call(New(3)); err != nil {
				t.Fatal(err)
			}
			d := decodeRequest(t, req)
			if d.kind != "can" {
				t.Fatalf("kind = %q", d.kind)
			}
			if diff := cmp.Diff(map[CanAttr][]byte{tt.attr: tt.want}, d.attrs); diff != "" {
				t.Fatalf("unexpected attributes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetMTU(t *testing.T) {
	req := captureAck(t)
	if err := New(3).SetMTU(72); err != nil {
		t.Fatal(err)
	}
	if d := decodeRequest(t, req); d.mtu != 72 {
		t.Fatalf("mtu = %d", d.mtu)
	}
}

func TestKernelErrorPreserved(t *testing.T) {
	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		return nltest.Error(int(unix.EBUSY), reqs)
	})
	err := New(3).SetBitrate(500_000, 0)
	if !errors.Is(err, unix.EBUSY) {
		t.Fatalf("err = %v, want EBUSY", err)
	}
}

func TestNoAck(t *testing.T) {
	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		m := reqs[0]
		m.Header.Flags = 0
		return []netlink.Message{m}, nil
	})
	if err := New(3).Restart(); !errors.Is(err, ErrNoAck) {
		t.Fatalf("err = %v, want ErrNoAck", err)
	}
}

// linkReply builds the RTM_NEWLINK answer to a GETLINK request.
func linkReply(req netlink.Message, ifi ifInfoMsg, name string, mtu uint32, kind string, data func(*netlink.AttributeEncoder) error, xstats []byte) (netlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	ae.Uint32(unix.IFLA_MTU, mtu)
	ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
		nae.String(unix.IFLA_INFO_KIND, kind)
		if data != nil {
			nae.Nested(unix.IFLA_INFO_DATA, data)
		}
		if xstats != nil {
			nae.Bytes(unix.IFLA_INFO_XSTATS, xstats)
		}
		return nil
	})
	b, err := ae.Encode()
	if err != nil {
		return netlink.Message{}, err
	}
	return netlink.Message{
		Header: netlink.Header{
			Type:     unix.RTM_NEWLINK,
			Sequence: req.Header.Sequence,
			PID:      req.Header.PID,
		},
		Data: append(ifi.marshalBinary(), b...),
	}, nil
}

func TestDetailsCan(t *testing.T) {
	var req netlink.Message
	btc := make([]byte, sizeOfBitTimingConst)
	copy(btc, "sja1000")
	for i := 16; i < sizeOfBitTimingConst; i += 4 {
		nlenc.PutUint32(btc[i:i+4], uint32(i/4-3))
	}
	stats := make([]byte, sizeOfDeviceStats)
	nlenc.PutUint32(stats[12:16], 2) // bus off

	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		req = reqs[0]
		m, err := linkReply(req, ifInfoMsg{Type: unix.ARPHRD_CAN, Index: 4, Flags: unix.IFF_UP}, "can0", 16, "can",
			func(ae *netlink.AttributeEncoder) error {
				ae.Bytes(uint16(AttrBitTiming), (&BitTiming{Bitrate: 500_000, Sample_point: 875, Tq: 125, Prop_seg: 6, Phase_seg1: 7, Phase_seg2: 2, Sjw: 1, Brp: 10}).marshalBinary())
				ae.Bytes(uint16(AttrBitTimingConst), btc)
				ae.Uint32(uint16(AttrClock), 8_000_000)
				ae.Uint32(uint16(AttrState), uint32(StateErrorPassive))
				ae.Bytes(uint16(AttrCtrlMode), (&CtrlModes{Mask: 0x1FF, Flags: 0x12}).marshalBinary())
				ae.Uint32(uint16(AttrRestartMs), 100)
				ae.Bytes(uint16(AttrBerrCounter), append(nlenc.Uint16Bytes(3), nlenc.Uint16Bytes(130)...))
				ae.Uint16(uint16(AttrTermination), 120)
				return nil
			}, stats)
		return []netlink.Message{m}, err
	})

	got, err := New(4).Details()
	if err != nil {
		t.Fatalf("Details: %v", err)
	}

	clock, state, restart, term := uint32(8_000_000), StateErrorPassive, uint32(100), uint16(120)
	want := InterfaceDetails{
		Name:  "can0",
		Index: 4,
		Kind:  "can",
		MTU:   16,
		IsUp:  true,
		Can: &CanParams{
			BitTiming: &BitTiming{Bitrate: 500_000, Sample_point: 875, Tq: 125, Prop_seg: 6, Phase_seg1: 7, Phase_seg2: 2, Sjw: 1, Brp: 10},
			BitTimingConst: &BitTimingConst{
				Name: [16]uint8{'s', 'j', 'a', '1', '0', '0', '0'},
				Tseg1_min: 1, Tseg1_max: 2, Tseg2_min: 3, Tseg2_max: 4,
				Sjw_max: 5, Brp_min: 6, Brp_max: 7, Brp_inc: 8,
			},
			Clock:       &clock,
			State:       &state,
			CtrlMode:    &CtrlModes{Mask: 0x1FF, Flags: 0x12},
			RestartMs:   &restart,
			BerrCounter: &BerrCounter{Txerr: 3, Rxerr: 130},
			Termination: &term,
			Stats:       &DeviceStats{Bus_off: 2},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected details (-want +got):\n%s", diff)
	}
	if name := got.Can.BitTimingConst.Controller(); name != "sja1000" {
		t.Fatalf("controller %q", name)
	}
	if !got.Can.CtrlMode.Has(CtrlModeListenOnly) || got.Can.CtrlMode.Has(CtrlModeLoopback) {
		t.Fatalf("ctrl modes %v", got.Can.CtrlMode.Enabled())
	}

	// GETLINK carries the VF filter and expects a reply, not an ack.
	if req.Header.Type != unix.RTM_GETLINK || req.Header.Flags != netlink.Request {
		t.Fatalf("request header %+v", req.Header)
	}
	d := decodeRequest(t, &req)
	if diff := cmp.Diff(nlenc.Uint32Bytes(rtextFilterVF), d.top[unix.IFLA_EXT_MASK]); diff != "" {
		t.Fatalf("ext mask (-want +got):\n%s", diff)
	}
}

func TestDetailsVcan(t *testing.T) {
	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		m, err := linkReply(reqs[0], ifInfoMsg{Type: unix.ARPHRD_CAN, Index: 11, Flags: unix.IFF_UP}, "info", 72, "vcan", nil, nil)
		return []netlink.Message{m}, err
	})
	ifc := New(11)
	got, err := ifc.Details()
	if err != nil {
		t.Fatal(err)
	}
	want := InterfaceDetails{Name: "info", Index: 11, Kind: "vcan", MTU: 72, IsUp: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected details (-want +got):\n%s", diff)
	}
	if _, err := ifc.Bitrate(); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Bitrate on vcan: %v", err)
	}
	if mtu, err := ifc.MTU(); err != nil || mtu != 72 {
		t.Fatalf("MTU = %d, %v", mtu, err)
	}
}

func TestDetailsBadState(t *testing.T) {
	withConn(t, func(reqs []netlink.Message) ([]netlink.Message, error) {
		m, err := linkReply(reqs[0], ifInfoMsg{Index: 1}, "can0", 16, "can",
			func(ae *netlink.AttributeEncoder) error {
				ae.Uint32(uint16(AttrState), 9)
				return nil
			}, nil)
		return []netlink.Message{m}, err
	})
	if _, err := New(1).State(); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestCtrlModeNames(t *testing.T) {
	for m := CtrlModeLoopback; m <= CtrlModeCCLen8DLC; m++ {
		got, err := ParseCtrlMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseCtrlMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseCtrlMode("warp"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCtrlModeBits(t *testing.T) {
	tests := []struct {
		mode CtrlMode
		bit  uint32
	}{
		{CtrlModeLoopback, unix.CAN_CTRLMODE_LOOPBACK},
		{CtrlModeListenOnly, unix.CAN_CTRLMODE_LISTENONLY},
		{CtrlModeTripleSampling, unix.CAN_CTRLMODE_3_SAMPLES},
		{CtrlModeOneShot, unix.CAN_CTRLMODE_ONE_SHOT},
		{CtrlModeBerrReporting, unix.CAN_CTRLMODE_BERR_REPORTING},
		{CtrlModeFD, unix.CAN_CTRLMODE_FD},
		{CtrlModePresumeAck, unix.CAN_CTRLMODE_PRESUME_ACK},
		{CtrlModeFDNonISO, unix.CAN_CTRLMODE_FD_NON_ISO},
		{CtrlModeCCLen8DLC, unix.CAN_CTRLMODE_CC_LEN8_DLC},
	}
	for _, tt := range tests {
		var cm CtrlModes
		cm.Set(tt.mode, true)
		if cm.Mask != tt.bit || cm.Flags != tt.bit {
			t.Errorf("%v: got %+v, want bit %#x", tt.mode, cm, tt.bit)
		}
	}
}

// TestVcanLifecycle talks to the real kernel and needs CAP_NET_ADMIN.
func TestVcanLifecycle(t *testing.T) {
	ifc, err := CreateVcan("nltest0")
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOENT) {
		t.Skipf("cannot create vcan: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := ifc.Delete(); err != nil {
			t.Errorf("delete: %v", err)
		}
	})

	if err := ifc.BringUp(); err != nil {
		t.Fatal(err)
	}
	d, err := ifc.Details()
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "nltest0" || d.Kind != "vcan" || !d.IsUp || d.Can != nil {
		t.Fatalf("details %+v", d)
	}
	if err := ifc.BringDown(); err != nil {
		t.Fatal(err)
	}
	if up, err := ifc.IsUp(); err != nil || up {
		t.Fatalf("IsUp = %v, %v", up, err)
	}
}
