//go:build linux

// Package nl configures CAN network interfaces over rtnetlink: bit timing,
// control modes, restart policy, up/down, and creating or deleting virtual
// interfaces.
package nl

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrNoAck is returned when the kernel answered a request without the
	// expected acknowledgement.
	ErrNoAck = errors.New("nl: request not acknowledged")
	// ErrNotAvailable is returned by getters when the kernel did not report
	// the attribute, for instance bit timing on a vcan interface.
	ErrNotAvailable = errors.New("nl: attribute not reported by the interface")
)

// ParamError reports an argument rejected before any request was sent.
type ParamError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("nl: invalid %s %v: %s", e.Param, e.Value, e.Reason)
}

// CanAttr is an IFLA_CAN_* attribute nested in IFLA_INFO_DATA.
type CanAttr uint16

const (
	AttrBitTiming          CanAttr = unix.IFLA_CAN_BITTIMING
	AttrBitTimingConst     CanAttr = unix.IFLA_CAN_BITTIMING_CONST
	AttrClock              CanAttr = unix.IFLA_CAN_CLOCK
	AttrState              CanAttr = unix.IFLA_CAN_STATE
	AttrCtrlMode           CanAttr = unix.IFLA_CAN_CTRLMODE
	AttrRestartMs          CanAttr = unix.IFLA_CAN_RESTART_MS
	AttrRestart            CanAttr = unix.IFLA_CAN_RESTART
	AttrBerrCounter        CanAttr = unix.IFLA_CAN_BERR_COUNTER
	AttrDataBitTiming      CanAttr = unix.IFLA_CAN_DATA_BITTIMING
	AttrDataBitTimingConst CanAttr = unix.IFLA_CAN_DATA_BITTIMING_CONST
	AttrTermination        CanAttr = unix.IFLA_CAN_TERMINATION
	AttrTerminationConst   CanAttr = unix.IFLA_CAN_TERMINATION_CONST
	AttrBitrateConst       CanAttr = unix.IFLA_CAN_BITRATE_CONST
	AttrDataBitrateConst   CanAttr = unix.IFLA_CAN_DATA_BITRATE_CONST
	AttrBitrateMax         CanAttr = unix.IFLA_CAN_BITRATE_MAX
)

// CanState is the controller state reported in IFLA_CAN_STATE.
type CanState uint32

const (
	StateErrorActive  CanState = unix.CAN_STATE_ERROR_ACTIVE
	StateErrorWarning CanState = unix.CAN_STATE_ERROR_WARNING
	StateErrorPassive CanState = unix.CAN_STATE_ERROR_PASSIVE
	StateBusOff       CanState = unix.CAN_STATE_BUS_OFF
	StateStopped      CanState = unix.CAN_STATE_STOPPED
	StateSleeping     CanState = unix.CAN_STATE_SLEEPING
)

var stateNames = [...]string{
	StateErrorActive:  "ERROR-ACTIVE",
	StateErrorWarning: "ERROR-WARNING",
	StateErrorPassive: "ERROR-PASSIVE",
	StateBusOff:       "BUS-OFF",
	StateStopped:      "STOPPED",
	StateSleeping:     "SLEEPING",
}

func (s CanState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("CanState(%d)", uint32(s))
}

// CtrlMode is the bit position of a control mode in CtrlModes.
type CtrlMode uint

const (
	CtrlModeLoopback CtrlMode = iota
	CtrlModeListenOnly
	CtrlModeTripleSampling
	CtrlModeOneShot
	CtrlModeBerrReporting
	CtrlModeFD
	CtrlModePresumeAck
	CtrlModeFDNonISO
	CtrlModeCCLen8DLC
)

var ctrlModeNames = [...]string{
	CtrlModeLoopback:       "loopback",
	CtrlModeListenOnly:     "listen-only",
	CtrlModeTripleSampling: "triple-sampling",
	CtrlModeOneShot:        "one-shot",
	CtrlModeBerrReporting:  "berr-reporting",
	CtrlModeFD:             "fd",
	CtrlModePresumeAck:     "presume-ack",
	CtrlModeFDNonISO:       "fd-non-iso",
	CtrlModeCCLen8DLC:      "cc-len8-dlc",
}

func (m CtrlMode) String() string {
	if int(m) < len(ctrlModeNames) {
		return ctrlModeNames[m]
	}
	return fmt.Sprintf("CtrlMode(%d)", uint(m))
}

// ParseCtrlMode accepts the names printed by CtrlMode.String.
func ParseCtrlMode(s string) (CtrlMode, error) {
	for i, n := range ctrlModeNames {
		if strings.EqualFold(n, s) {
			return CtrlMode(i), nil
		}
	}
	return 0, &ParamError{Param: "control mode", Value: s, Reason: "unknown mode"}
}

var ctrlModeBits = [...]uint32{
	CtrlModeLoopback:       unix.CAN_CTRLMODE_LOOPBACK,
	CtrlModeListenOnly:     unix.CAN_CTRLMODE_LISTENONLY,
	CtrlModeTripleSampling: unix.CAN_CTRLMODE_3_SAMPLES,
	CtrlModeOneShot:        unix.CAN_CTRLMODE_ONE_SHOT,
	CtrlModeBerrReporting:  unix.CAN_CTRLMODE_BERR_REPORTING,
	CtrlModeFD:             unix.CAN_CTRLMODE_FD,
	CtrlModePresumeAck:     unix.CAN_CTRLMODE_PRESUME_ACK,
	CtrlModeFDNonISO:       unix.CAN_CTRLMODE_FD_NON_ISO,
	CtrlModeCCLen8DLC:      unix.CAN_CTRLMODE_CC_LEN8_DLC,
}

func (m CtrlMode) bit() uint32 {
	if int(m) < len(ctrlModeBits) {
		return ctrlModeBits[m]
	}
	return 1 << m
}

// CtrlModes is struct can_ctrlmode: Mask selects the modes to change and
// Flags holds their new state.
type CtrlModes unix.CANCtrlMode

// Set marks mode for change and records its new state.
func (c *CtrlModes) Set(mode CtrlMode, on bool) {
	c.Mask |= mode.bit()
	if on {
		c.Flags |= mode.bit()
	} else {
		c.Flags &^= mode.bit()
	}
}

// Has reports whether mode is enabled in Flags.
func (c CtrlModes) Has(mode CtrlMode) bool { return c.Flags&mode.bit() != 0 }

// Enabled lists the modes set in Flags.
func (c CtrlModes) Enabled() []CtrlMode {
	var out []CtrlMode
	for m := CtrlModeLoopback; m <= CtrlModeCCLen8DLC; m++ {
		if c.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// BitTiming is struct can_bittiming. When only Bitrate (and optionally
// Sample_point, in tenths of a percent) is set the kernel computes the rest.
type BitTiming unix.CANBitTiming

// BitTimingConst is struct can_bittiming_const, the controller's limits.
type BitTimingConst unix.CANBitTimingConst

// Controller returns the NUL-terminated controller name.
func (c *BitTimingConst) Controller() string {
	name, _, _ := bytes.Cut(c.Name[:], []byte{0})
	return string(name)
}

type BerrCounter unix.CANBusErrorCounters

// DeviceStats is struct can_device_stats from IFLA_INFO_XSTATS.
type DeviceStats unix.CANDeviceStats

// CanParams is the CAN part of a link dump. Fields the kernel did not
// report are nil.
type CanParams struct {
	BitTiming          *BitTiming
	BitTimingConst     *BitTimingConst
	Clock              *uint32
	State              *CanState
	CtrlMode           *CtrlModes
	RestartMs          *uint32
	BerrCounter        *BerrCounter
	DataBitTiming      *BitTiming
	DataBitTimingConst *BitTimingConst
	Termination        *uint16
	Stats              *DeviceStats
}

// InterfaceDetails is what Details reports about a link.
type InterfaceDetails struct {
	Name  string
	Index int
	Kind  string
	MTU   uint32
	IsUp  bool
	// Can is nil unless the link carried CAN data.
	Can *CanParams
}
