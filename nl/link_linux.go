//go:build linux

package nl

import (
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/lion187chen/socketcan-go/v2/internal/logging"
)

const (
	canLinkType  = "can"
	vcanLinkType = "vcan"
)

// RTEXT_FILTER_VF from <linux/rtnetlink.h>; x/sys/unix does not define it.
const rtextFilterVF = 1

const (
	maxBitrate     = 1_000_000
	maxSamplePoint = 1000 // tenths of a percent
)

// dial opens the rtnetlink socket used by a single request. Tests replace
// it with an nltest connection.
var dial = func() (*netlink.Conn, error) {
	return netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
}

// Interface is a handle on a network interface, identified by index. It
// owns no resources; every call opens and closes its own netlink socket.
type Interface struct {
	index int
}

// New returns the handle for ifindex.
func New(ifindex int) Interface { return Interface{index: ifindex} }

// Open looks name up and returns its handle.
func Open(name string) (Interface, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return Interface{}, fmt.Errorf("if %q: %w", name, err)
	}
	return Interface{index: ifi.Index}, nil
}

// Create adds a link of the given kind ("vcan", "can", ...). A zero index
// lets the kernel choose; the handle then resolves name again, which fails
// if the link was removed in the meantime.
func Create(name string, index int, kind string) (Interface, error) {
	if name == "" {
		return Interface{}, &ParamError{Param: "name", Value: name, Reason: "empty"}
	}
	req := newRequest(unix.RTM_NEWLINK, netlink.Create|netlink.Excl, &ifInfoMsg{Index: int32(index)})
	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	ae.Nested(unix.IFLA_LINKINFO, linkInfo(kind, nil))
	if err := appendAttrs(&req, ae); err != nil {
		return Interface{}, err
	}
	if err := ack(req, "create link "+name); err != nil {
		return Interface{}, err
	}
	if index != 0 {
		return Interface{index: index}, nil
	}
	return Open(name)
}

// CreateVcan adds a virtual CAN interface.
func CreateVcan(name string) (Interface, error) { return Create(name, 0, vcanLinkType) }

// Index returns the interface index.
func (i Interface) Index() int { return i.index }

// BringUp sets IFF_UP.
func (i Interface) BringUp() error {
	req := newRequest(unix.RTM_NEWLINK, 0, &ifInfoMsg{Index: int32(i.index), Flags: unix.IFF_UP, Change: unix.IFF_UP})
	return ack(req, "set link up")
}

// BringDown clears IFF_UP.
func (i Interface) BringDown() error {
	req := newRequest(unix.RTM_NEWLINK, 0, &ifInfoMsg{Index: int32(i.index), Change: unix.IFF_UP})
	return ack(req, "set link down")
}

// Delete removes the link. The handle stays valid, so a failed delete can
// be retried.
func (i Interface) Delete() error {
	req := newRequest(unix.RTM_DELLINK, 0, &ifInfoMsg{Index: int32(i.index)})
	return ack(req, "delete link")
}

// Details dumps the link: name, MTU, up flag and, for CAN links, the CAN
// parameter block.
func (i Interface) Details() (InterfaceDetails, error) {
	req := netlink.Message{
		Header: netlink.Header{
			Flags: netlink.Request,
			Type:  unix.RTM_GETLINK,
		},
		Data: (&ifInfoMsg{Index: int32(i.index)}).marshalBinary(),
	}
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.IFLA_EXT_MASK, rtextFilterVF)
	if err := appendAttrs(&req, ae); err != nil {
		return InterfaceDetails{}, err
	}

	res, err := execute(req, "retrieve link info")
	if err != nil {
		return InterfaceDetails{}, err
	}
	if len(res) != 1 {
		return InterfaceDetails{}, fmt.Errorf("expected 1 message, got %d", len(res))
	}
	if res[0].Header.Type != unix.RTM_NEWLINK {
		return InterfaceDetails{}, fmt.Errorf("unexpected reply type %d", res[0].Header.Type)
	}
	var lm linkMessage
	if err := lm.unmarshalBinary(res[0].Data); err != nil {
		return InterfaceDetails{}, fmt.Errorf("couldn't decode info: %w", err)
	}
	return lm.details, nil
}

// SetCanParam sends Linkinfo{Kind "can", Data{attr: payload}}. The typed
// setters below are built on it.
func (i Interface) SetCanParam(attr CanAttr, payload []byte) error {
	req := newRequest(unix.RTM_NEWLINK, 0, &ifInfoMsg{Index: int32(i.index)})
	ae := netlink.NewAttributeEncoder()
	ae.Nested(unix.IFLA_LINKINFO, linkInfo(canLinkType, canData(attr, payload)))
	if err := appendAttrs(&req, ae); err != nil {
		return err
	}
	return ack(req, fmt.Sprintf("set CAN attribute %d", attr))
}

func checkBitrate(rate, samplePoint uint32) error {
	if rate == 0 || rate > maxBitrate {
		return &ParamError{Param: "bitrate", Value: rate, Reason: "must be in 1..1000000"}
	}
	if samplePoint >= maxSamplePoint {
		return &ParamError{Param: "sample point", Value: samplePoint, Reason: "tenths of a percent, must be below 1000"}
	}
	return nil
}

// SetBitrate sets the nominal bitrate in bit/s and, unless zero, the sample
// point in tenths of a percent. The interface must be down.
func (i Interface) SetBitrate(rate, samplePoint uint32) error {
	if err := checkBitrate(rate, samplePoint); err != nil {
		return err
	}
	return i.SetBitTiming(BitTiming{Bitrate: rate, Sample_point: samplePoint})
}

// SetBitTiming sends a full bit-timing block.
func (i Interface) SetBitTiming(bt BitTiming) error {
	return i.SetCanParam(AttrBitTiming, bt.marshalBinary())
}

// SetDataBitrate sets the FD data phase bitrate.
func (i Interface) SetDataBitrate(rate, samplePoint uint32) error {
	if rate == 0 {
		return &ParamError{Param: "data bitrate", Value: rate, Reason: "must be positive"}
	}
	if samplePoint >= maxSamplePoint {
		return &ParamError{Param: "data sample point", Value: samplePoint, Reason: "tenths of a percent, must be below 1000"}
	}
	return i.SetDataBitTiming(BitTiming{Bitrate: rate, Sample_point: samplePoint})
}

func (i Interface) SetDataBitTiming(bt BitTiming) error {
	return i.SetCanParam(AttrDataBitTiming, bt.marshalBinary())
}

// SetCtrlMode turns a single control mode on or off.
func (i Interface) SetCtrlMode(mode CtrlMode, on bool) error {
	if mode > CtrlModeCCLen8DLC {
		return &ParamError{Param: "control mode", Value: uint(mode), Reason: "unknown mode"}
	}
	var cm CtrlModes
	cm.Set(mode, on)
	return i.SetCtrlModes(cm)
}

// SetCtrlModes changes every mode selected by cm.Mask at once.
func (i Interface) SetCtrlModes(cm CtrlModes) error {
	return i.SetCanParam(AttrCtrlMode, cm.marshalBinary())
}

// SetRestartMs sets the automatic restart delay after bus-off. Zero
// disables automatic restarts.
func (i Interface) SetRestartMs(ms uint32) error {
	return i.SetCanParam(AttrRestartMs, u32(ms))
}

// Restart restarts a bus-off controller by hand. The kernel refuses it
// while automatic restarts are enabled or the controller is not bus-off;
// its errno is returned unchanged.
func (i Interface) Restart() error {
	return i.SetCanParam(AttrRestart, u32(1))
}

// SetTermination sets the bus termination in ohms, zero disables it.
func (i Interface) SetTermination(ohms uint16) error {
	return i.SetCanParam(AttrTermination, u16(ohms))
}

// SetMTU switches between CAN_MTU (16) and CANFD_MTU (72) on interfaces
// that support both.
func (i Interface) SetMTU(mtu uint32) error {
	req := newRequest(unix.RTM_NEWLINK, 0, &ifInfoMsg{Index: int32(i.index)})
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.IFLA_MTU, mtu)
	if err := appendAttrs(&req, ae); err != nil {
		return err
	}
	return ack(req, "set mtu")
}

// canParams dumps the link and returns its CAN block.
func (i Interface) canParams() (*CanParams, error) {
	d, err := i.Details()
	if err != nil {
		return nil, err
	}
	if d.Can == nil {
		return nil, fmt.Errorf("%s: %w", d.Name, ErrNotAvailable)
	}
	return d.Can, nil
}

func (i Interface) BitTiming() (BitTiming, error) {
	p, err := i.canParams()
	if err != nil {
		return BitTiming{}, err
	}
	if p.BitTiming == nil {
		return BitTiming{}, fmt.Errorf("bit timing: %w", ErrNotAvailable)
	}
	return *p.BitTiming, nil
}

// Bitrate returns the nominal bitrate.
func (i Interface) Bitrate() (uint32, error) {
	bt, err := i.BitTiming()
	if err != nil {
		return 0, err
	}
	return bt.Bitrate, nil
}

func (i Interface) State() (CanState, error) {
	p, err := i.canParams()
	if err != nil {
		return 0, err
	}
	if p.State == nil {
		return 0, fmt.Errorf("state: %w", ErrNotAvailable)
	}
	return *p.State, nil
}

func (i Interface) CtrlModes() (CtrlModes, error) {
	p, err := i.canParams()
	if err != nil {
		return CtrlModes{}, err
	}
	if p.CtrlMode == nil {
		return CtrlModes{}, fmt.Errorf("control modes: %w", ErrNotAvailable)
	}
	return *p.CtrlMode, nil
}

func (i Interface) RestartMs() (uint32, error) {
	p, err := i.canParams()
	if err != nil {
		return 0, err
	}
	if p.RestartMs == nil {
		return 0, fmt.Errorf("restart-ms: %w", ErrNotAvailable)
	}
	return *p.RestartMs, nil
}

func (i Interface) BerrCounter() (BerrCounter, error) {
	p, err := i.canParams()
	if err != nil {
		return BerrCounter{}, err
	}
	if p.BerrCounter == nil {
		return BerrCounter{}, fmt.Errorf("error counters: %w", ErrNotAvailable)
	}
	return *p.BerrCounter, nil
}

// Clock returns the controller clock in Hz.
func (i Interface) Clock() (uint32, error) {
	p, err := i.canParams()
	if err != nil {
		return 0, err
	}
	if p.Clock == nil {
		return 0, fmt.Errorf("clock: %w", ErrNotAvailable)
	}
	return *p.Clock, nil
}

func (i Interface) Termination() (uint16, error) {
	p, err := i.canParams()
	if err != nil {
		return 0, err
	}
	if p.Termination == nil {
		return 0, fmt.Errorf("termination: %w", ErrNotAvailable)
	}
	return *p.Termination, nil
}

func (i Interface) MTU() (uint32, error) {
	d, err := i.Details()
	if err != nil {
		return 0, err
	}
	return d.MTU, nil
}

func (i Interface) IsUp() (bool, error) {
	d, err := i.Details()
	if err != nil {
		return false, err
	}
	return d.IsUp, nil
}

func newRequest(typ netlink.HeaderType, flags netlink.HeaderFlags, ifi *ifInfoMsg) netlink.Message {
	return netlink.Message{
		Header: netlink.Header{
			Flags: netlink.Request | netlink.Acknowledge | flags,
			Type:  typ,
		},
		Data: ifi.marshalBinary(),
	}
}

func appendAttrs(req *netlink.Message, ae *netlink.AttributeEncoder) error {
	b, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("couldn't encode message: %w", err)
	}
	req.Data = append(req.Data, b...)
	return nil
}

func execute(req netlink.Message, what string) ([]netlink.Message, error) {
	c, err := dial()
	if err != nil {
		return nil, fmt.Errorf("couldn't dial netlink socket: %w", err)
	}
	defer c.Close()

	res, err := c.Execute(req)
	logging.L().Debug("netlink request", "op", what, "type", req.Header.Type, "replies", len(res), "error", err)
	if err != nil {
		return nil, fmt.Errorf("couldn't %s: %w", what, err)
	}
	return res, nil
}

// ack runs req and requires a single acknowledgement in reply.
func ack(req netlink.Message, what string) error {
	res, err := execute(req, what)
	if err != nil {
		return err
	}
	if len(res) != 1 || res[0].Header.Type != netlink.Error {
		return fmt.Errorf("%s: %w", what, ErrNoAck)
	}
	return nil
}
