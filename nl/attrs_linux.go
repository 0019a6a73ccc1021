//go:build linux

package nl

import (
	"fmt"
	"unsafe"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

const (
	sizeOfBitTiming      = int(unsafe.Sizeof(unix.CANBitTiming{}))
	sizeOfBitTimingConst = int(unsafe.Sizeof(unix.CANBitTimingConst{}))
	sizeOfCtrlMode       = int(unsafe.Sizeof(unix.CANCtrlMode{}))
	sizeOfBerrCounter    = int(unsafe.Sizeof(unix.CANBusErrorCounters{}))
	sizeOfDeviceStats    = int(unsafe.Sizeof(unix.CANDeviceStats{}))
)

func sizeError(what string, want, got int) error {
	return fmt.Errorf("data is not a valid %s, expected: %d bytes, got: %d bytes", what, want, got)
}

// ifInfoMsg is struct ifinfomsg.
type ifInfoMsg struct {
	Family uint8
	Type   uint16
	Index  int32
	Flags  uint32
	Change uint32
}

func (ifi *ifInfoMsg) marshalBinary() []byte {
	buf := make([]byte, unix.SizeofIfInfomsg)
	buf[0] = ifi.Family
	buf[1] = 0 // reserved
	nlenc.PutUint16(buf[2:4], ifi.Type)
	nlenc.PutInt32(buf[4:8], ifi.Index)
	nlenc.PutUint32(buf[8:12], ifi.Flags)
	nlenc.PutUint32(buf[12:16], ifi.Change)
	return buf
}

func (ifi *ifInfoMsg) unmarshalBinary(data []byte) error {
	if len(data) != unix.SizeofIfInfomsg {
		return sizeError("ifInfoMsg", unix.SizeofIfInfomsg, len(data))
	}
	ifi.Family = data[0]
	ifi.Type = nlenc.Uint16(data[2:4])
	ifi.Index = nlenc.Int32(data[4:8])
	ifi.Flags = nlenc.Uint32(data[8:12])
	ifi.Change = nlenc.Uint32(data[12:16])
	return nil
}

func (bt *BitTiming) marshalBinary() []byte {
	buf := make([]byte, sizeOfBitTiming)
	nlenc.PutUint32(buf[0:4], bt.Bitrate)
	nlenc.PutUint32(buf[4:8], bt.Sample_point)
	nlenc.PutUint32(buf[8:12], bt.Tq)
	nlenc.PutUint32(buf[12:16], bt.Prop_seg)
	nlenc.PutUint32(buf[16:20], bt.Phase_seg1)
	nlenc.PutUint32(buf[20:24], bt.Phase_seg2)
	nlenc.PutUint32(buf[24:28], bt.Sjw)
	nlenc.PutUint32(buf[28:32], bt.Brp)
	return buf
}

func (bt *BitTiming) unmarshalBinary(data []byte) error {
	if len(data) != sizeOfBitTiming {
		return sizeError("BitTiming", sizeOfBitTiming, len(data))
	}
	bt.Bitrate = nlenc.Uint32(data[0:4])
	bt.Sample_point = nlenc.Uint32(data[4:8])
	bt.Tq = nlenc.Uint32(data[8:12])
	bt.Prop_seg = nlenc.Uint32(data[12:16])
	bt.Phase_seg1 = nlenc.Uint32(data[16:20])
	bt.Phase_seg2 = nlenc.Uint32(data[20:24])
	bt.Sjw = nlenc.Uint32(data[24:28])
	bt.Brp = nlenc.Uint32(data[28:32])
	return nil
}

func (btc *BitTimingConst) unmarshalBinary(data []byte) error {
	if len(data) != sizeOfBitTimingConst {
		return sizeError("BitTimingConst", sizeOfBitTimingConst, len(data))
	}
	copy(btc.Name[:], data[0:16])
	btc.Tseg1_min = nlenc.Uint32(data[16:20])
	btc.Tseg1_max = nlenc.Uint32(data[20:24])
	btc.Tseg2_min = nlenc.Uint32(data[24:28])
	btc.Tseg2_max = nlenc.Uint32(data[28:32])
	btc.Sjw_max = nlenc.Uint32(data[32:36])
	btc.Brp_min = nlenc.Uint32(data[36:40])
	btc.Brp_max = nlenc.Uint32(data[40:44])
	btc.Brp_inc = nlenc.Uint32(data[44:48])
	return nil
}

func (cm *CtrlModes) marshalBinary() []byte {
	buf := make([]byte, sizeOfCtrlMode)
	nlenc.PutUint32(buf[0:4], cm.Mask)
	nlenc.PutUint32(buf[4:8], cm.Flags)
	return buf
}

func (cm *CtrlModes) unmarshalBinary(data []byte) error {
	if len(data) != sizeOfCtrlMode {
		return sizeError("CtrlModes", sizeOfCtrlMode, len(data))
	}
	cm.Mask = nlenc.Uint32(data[0:4])
	cm.Flags = nlenc.Uint32(data[4:8])
	return nil
}

func (bc *BerrCounter) unmarshalBinary(data []byte) error {
	if len(data) != sizeOfBerrCounter {
		return sizeError("BerrCounter", sizeOfBerrCounter, len(data))
	}
	bc.Txerr = nlenc.Uint16(data[0:2])
	bc.Rxerr = nlenc.Uint16(data[2:4])
	return nil
}

func (s *DeviceStats) unmarshalBinary(data []byte) error {
	if len(data) != sizeOfDeviceStats {
		return sizeError("DeviceStats", sizeOfDeviceStats, len(data))
	}
	s.Bus_error = nlenc.Uint32(data[0:4])
	s.Error_warning = nlenc.Uint32(data[4:8])
	s.Error_passive = nlenc.Uint32(data[8:12])
	s.Bus_off = nlenc.Uint32(data[12:16])
	s.Arbitration_lost = nlenc.Uint32(data[16:20])
	s.Restarts = nlenc.Uint32(data[20:24])
	return nil
}

// linkInfo encodes IFLA_LINKINFO { IFLA_INFO_KIND kind, IFLA_INFO_DATA {...} }.
// The kernel drops CAN attributes that are not nested exactly this way.
func linkInfo(kind string, data func(*netlink.AttributeEncoder) error) func(*netlink.AttributeEncoder) error {
	return func(ae *netlink.AttributeEncoder) error {
		ae.String(unix.IFLA_INFO_KIND, kind)
		if data != nil {
			ae.Nested(unix.IFLA_INFO_DATA, data)
		}
		return nil
	}
}

// canData encodes a single IFLA_CAN_* attribute.
func canData(attr CanAttr, payload []byte) func(*netlink.AttributeEncoder) error {
	return func(ae *netlink.AttributeEncoder) error {
		ae.Bytes(uint16(attr), payload)
		return nil
	}
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	nlenc.PutUint32(b, v)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	nlenc.PutUint16(b, v)
	return b
}

// linkMessage is the decoded payload of an RTM_NEWLINK reply.
type linkMessage struct {
	ifi     ifInfoMsg
	details InterfaceDetails
}

func (lm *linkMessage) unmarshalBinary(data []byte) error {
	if len(data) < unix.SizeofIfInfomsg {
		return sizeError("link message", unix.SizeofIfInfomsg, len(data))
	}
	if err := lm.ifi.unmarshalBinary(data[:unix.SizeofIfInfomsg]); err != nil {
		return fmt.Errorf("couldn't unmarshal ifInfoMsg: %w", err)
	}
	lm.details.Index = int(lm.ifi.Index)
	lm.details.IsUp = lm.ifi.Flags&unix.IFF_UP != 0

	ad, err := netlink.NewAttributeDecoder(data[unix.SizeofIfInfomsg:])
	if err != nil {
		return err
	}
	for ad.Next() {
		switch ad.Type() {
		case unix.IFLA_IFNAME:
			lm.details.Name = ad.String()
		case unix.IFLA_MTU:
			lm.details.MTU = ad.Uint32()
		case unix.IFLA_LINKINFO:
			ad.Nested(lm.decodeLinkInfo)
		}
	}
	if err := ad.Err(); err != nil {
		return fmt.Errorf("couldn't decode link: %w", err)
	}
	return nil
}

func (lm *linkMessage) decodeLinkInfo(ad *netlink.AttributeDecoder) error {
	var (
		data  []byte
		stats []byte
	)
	for ad.Next() {
		switch ad.Type() {
		case unix.IFLA_INFO_KIND:
			lm.details.Kind = ad.String()
		case unix.IFLA_INFO_DATA:
			data = ad.Bytes()
		case unix.IFLA_INFO_XSTATS:
			stats = ad.Bytes()
		}
	}
	if err := ad.Err(); err != nil {
		return err
	}
	// IFLA_INFO_DATA is kind specific; only "can" links carry CAN attributes.
	if lm.details.Kind != "can" || data == nil {
		return nil
	}
	p := &CanParams{}
	nad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return err
	}
	if err := p.decode(nad); err != nil {
		return err
	}
	if stats != nil {
		p.Stats = &DeviceStats{}
		if err := p.Stats.unmarshalBinary(stats); err != nil {
			return err
		}
	}
	lm.details.Can = p
	return nil
}

func (p *CanParams) decode(ad *netlink.AttributeDecoder) error {
	var err error
	for ad.Next() {
		switch CanAttr(ad.Type()) {
		case AttrBitTiming:
			p.BitTiming = &BitTiming{}
			err = p.BitTiming.unmarshalBinary(ad.Bytes())
		case AttrBitTimingConst:
			p.BitTimingConst = &BitTimingConst{}
			err = p.BitTimingConst.unmarshalBinary(ad.Bytes())
		case AttrClock:
			v := ad.Uint32()
			p.Clock = &v
		case AttrState:
			v := CanState(ad.Uint32())
			if v > StateSleeping {
				err = fmt.Errorf("unknown CAN state %d", uint32(v))
			}
			p.State = &v
		case AttrCtrlMode:
			p.CtrlMode = &CtrlModes{}
			err = p.CtrlMode.unmarshalBinary(ad.Bytes())
		case AttrRestartMs:
			v := ad.Uint32()
			p.RestartMs = &v
		case AttrBerrCounter:
			p.BerrCounter = &BerrCounter{}
			err = p.BerrCounter.unmarshalBinary(ad.Bytes())
		case AttrDataBitTiming:
			p.DataBitTiming = &BitTiming{}
			err = p.DataBitTiming.unmarshalBinary(ad.Bytes())
		case AttrDataBitTimingConst:
			p.DataBitTimingConst = &BitTimingConst{}
			err = p.DataBitTimingConst.unmarshalBinary(ad.Bytes())
		case AttrTermination:
			v := ad.Uint16()
			p.Termination = &v
		}
		if err != nil {
			return err
		}
	}
	return ad.Err()
}
