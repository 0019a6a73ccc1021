package socketcan

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrorClass is the error category carried by an error frame.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransmitTimeout
	ClassLostArbitration
	ClassController
	ClassProtocolViolation
	ClassTransceiver
	ClassNoAck
	ClassBusOff
	ClassBusError
	ClassRestarted
)

var classNames = [...]string{
	ClassUnknown:           "unknown",
	ClassTransmitTimeout:   "transmit timeout",
	ClassLostArbitration:   "lost arbitration",
	ClassController:        "controller problem",
	ClassProtocolViolation: "protocol violation",
	ClassTransceiver:       "transceiver error",
	ClassNoAck:             "no ack",
	ClassBusOff:            "bus off",
	ClassBusError:          "bus error",
	ClassRestarted:         "restarted",
}

func (c ErrorClass) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("ErrorClass(%d)", int(c))
	}
	return classNames[c]
}

// classByBit maps a single class bit of the id word to its class.
var classByBit = map[uint32]ErrorClass{
	CAN_ERR_TX_TIMEOUT: ClassTransmitTimeout,
	CAN_ERR_LOSTARB:    ClassLostArbitration,
	CAN_ERR_CRTL:       ClassController,
	CAN_ERR_PROT:       ClassProtocolViolation,
	CAN_ERR_TRX:        ClassTransceiver,
	CAN_ERR_ACK:        ClassNoAck,
	CAN_ERR_BUSOFF:     ClassBusOff,
	CAN_ERR_BUSERROR:   ClassBusError,
	CAN_ERR_RESTARTED:  ClassRestarted,
}

// ControllerProblem is the data[1] sub-code of a controller problem.
type ControllerProblem uint8

const (
	ControllerUnspecified      ControllerProblem = unix.CAN_ERR_CRTL_UNSPEC
	ControllerRxBufferOverflow ControllerProblem = unix.CAN_ERR_CRTL_RX_OVERFLOW
	ControllerTxBufferOverflow ControllerProblem = unix.CAN_ERR_CRTL_TX_OVERFLOW
	ControllerRxWarning        ControllerProblem = unix.CAN_ERR_CRTL_RX_WARNING
	ControllerTxWarning        ControllerProblem = unix.CAN_ERR_CRTL_TX_WARNING
	ControllerRxPassive        ControllerProblem = unix.CAN_ERR_CRTL_RX_PASSIVE
	ControllerTxPassive        ControllerProblem = unix.CAN_ERR_CRTL_TX_PASSIVE
	ControllerActive           ControllerProblem = unix.CAN_ERR_CRTL_ACTIVE
)

var controllerProblems = map[ControllerProblem]string{
	ControllerUnspecified:      "unspecified",
	ControllerRxBufferOverflow: "rx buffer overflow",
	ControllerTxBufferOverflow: "tx buffer overflow",
	ControllerRxWarning:        "rx warning level reached",
	ControllerTxWarning:        "tx warning level reached",
	ControllerRxPassive:        "rx error passive",
	ControllerTxPassive:        "tx error passive",
	ControllerActive:           "recovered to error active",
}

func (p ControllerProblem) String() string { return lookupName(controllerProblems, p) }

// ViolationType is the data[2] sub-code of a protocol violation.
type ViolationType uint8

const (
	ViolationUnspecified         ViolationType = unix.CAN_ERR_PROT_UNSPEC
	ViolationSingleBit           ViolationType = unix.CAN_ERR_PROT_BIT
	ViolationFrameFormat         ViolationType = unix.CAN_ERR_PROT_FORM
	ViolationBitStuffing         ViolationType = unix.CAN_ERR_PROT_STUFF
	ViolationUnableSendDominant  ViolationType = unix.CAN_ERR_PROT_BIT0
	ViolationUnableSendRecessive ViolationType = unix.CAN_ERR_PROT_BIT1
	ViolationBusOverload         ViolationType = unix.CAN_ERR_PROT_OVERLOAD
	ViolationActive              ViolationType = unix.CAN_ERR_PROT_ACTIVE
	ViolationTransmission        ViolationType = unix.CAN_ERR_PROT_TX
)

var violationTypes = map[ViolationType]string{
	ViolationUnspecified:         "unspecified",
	ViolationSingleBit:           "single bit error",
	ViolationFrameFormat:         "frame format error",
	ViolationBitStuffing:         "bit stuffing error",
	ViolationUnableSendDominant:  "unable to send dominant bit",
	ViolationUnableSendRecessive: "unable to send recessive bit",
	ViolationBusOverload:         "bus overload",
	ViolationActive:              "active error announcement",
	ViolationTransmission:        "error occurred on transmission",
}

func (v ViolationType) String() string { return lookupName(violationTypes, v) }

// Location is the data[3] sub-code of a protocol violation: the frame field
// the violation was detected in.
type Location uint8

const (
	LocationUnspecified  Location = unix.CAN_ERR_PROT_LOC_UNSPEC
	LocationStartOfFrame Location = unix.CAN_ERR_PROT_LOC_SOF
	LocationID28To21     Location = unix.CAN_ERR_PROT_LOC_ID28_21
	LocationID20To18     Location = unix.CAN_ERR_PROT_LOC_ID20_18
	LocationSRTR         Location = unix.CAN_ERR_PROT_LOC_SRTR
	LocationIDE          Location = unix.CAN_ERR_PROT_LOC_IDE
	LocationID17To13     Location = unix.CAN_ERR_PROT_LOC_ID17_13
	LocationID12To05     Location = unix.CAN_ERR_PROT_LOC_ID12_05
	LocationID04To00     Location = unix.CAN_ERR_PROT_LOC_ID04_00
	LocationRTR          Location = unix.CAN_ERR_PROT_LOC_RTR
	LocationReserved1    Location = unix.CAN_ERR_PROT_LOC_RES1
	LocationReserved0    Location = unix.CAN_ERR_PROT_LOC_RES0
	LocationDLC          Location = unix.CAN_ERR_PROT_LOC_DLC
	LocationData         Location = unix.CAN_ERR_PROT_LOC_DATA
	LocationCRCSequence  Location = unix.CAN_ERR_PROT_LOC_CRC_SEQ
	LocationCRCDelimiter Location = unix.CAN_ERR_PROT_LOC_CRC_DEL
	LocationAckSlot      Location = unix.CAN_ERR_PROT_LOC_ACK
	LocationAckDelimiter Location = unix.CAN_ERR_PROT_LOC_ACK_DEL
	LocationEndOfFrame   Location = unix.CAN_ERR_PROT_LOC_EOF
	LocationIntermission Location = unix.CAN_ERR_PROT_LOC_INTERM
)

var locations = map[Location]string{
	LocationUnspecified:  "unspecified",
	LocationStartOfFrame: "start of frame",
	LocationID28To21:     "id bits 28-21",
	LocationID20To18:     "id bits 20-18",
	LocationSRTR:         "substitute rtr",
	LocationIDE:          "identifier extension",
	LocationID17To13:     "id bits 17-13",
	LocationID12To05:     "id bits 12-05",
	LocationID04To00:     "id bits 04-00",
	LocationRTR:          "rtr bit",
	LocationReserved1:    "reserved bit 1",
	LocationReserved0:    "reserved bit 0",
	LocationDLC:          "data length code",
	LocationData:         "data section",
	LocationCRCSequence:  "crc sequence",
	LocationCRCDelimiter: "crc delimiter",
	LocationAckSlot:      "ack slot",
	LocationAckDelimiter: "ack delimiter",
	LocationEndOfFrame:   "end of frame",
	LocationIntermission: "intermission",
}

func (l Location) String() string { return lookupName(locations, l) }

// TransceiverError is the data[4] sub-code of a transceiver error.
type TransceiverError uint8

const (
	TransceiverUnspecified          TransceiverError = unix.CAN_ERR_TRX_UNSPEC
	TransceiverCanHighNoWire        TransceiverError = unix.CAN_ERR_TRX_CANH_NO_WIRE
	TransceiverCanHighShortToBat    TransceiverError = unix.CAN_ERR_TRX_CANH_SHORT_TO_BAT
	TransceiverCanHighShortToVcc    TransceiverError = unix.CAN_ERR_TRX_CANH_SHORT_TO_VCC
	TransceiverCanHighShortToGnd    TransceiverError = unix.CAN_ERR_TRX_CANH_SHORT_TO_GND
	TransceiverCanLowNoWire         TransceiverError = unix.CAN_ERR_TRX_CANL_NO_WIRE
	TransceiverCanLowShortToBat     TransceiverError = unix.CAN_ERR_TRX_CANL_SHORT_TO_BAT
	TransceiverCanLowShortToVcc     TransceiverError = unix.CAN_ERR_TRX_CANL_SHORT_TO_VCC
	TransceiverCanLowShortToGnd     TransceiverError = unix.CAN_ERR_TRX_CANL_SHORT_TO_GND
	TransceiverCanLowShortToCanHigh TransceiverError = unix.CAN_ERR_TRX_CANL_SHORT_TO_CANH
)

var transceiverErrors = map[TransceiverError]string{
	TransceiverUnspecified:          "unspecified",
	TransceiverCanHighNoWire:        "CANH no wire",
	TransceiverCanHighShortToBat:    "CANH short to BAT",
	TransceiverCanHighShortToVcc:    "CANH short to VCC",
	TransceiverCanHighShortToGnd:    "CANH short to GND",
	TransceiverCanLowNoWire:         "CANL no wire",
	TransceiverCanLowShortToBat:     "CANL short to BAT",
	TransceiverCanLowShortToVcc:     "CANL short to VCC",
	TransceiverCanLowShortToGnd:     "CANL short to GND",
	TransceiverCanLowShortToCanHigh: "CANL short to CANH",
}

func (t TransceiverError) String() string { return lookupName(transceiverErrors, t) }

func lookupName[K ~uint8](names map[K]string, k K) string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("%#02x", uint8(k))
}

// DecodeErrorKind tells why a sub-code could not be decoded.
type DecodeErrorKind int

const (
	NotEnoughData DecodeErrorKind = iota
	InvalidControllerProblem
	InvalidViolationType
	InvalidLocation
	InvalidTransceiverError
)

// DecodeError reports a sub-code that is missing or not in the kernel's
// table. Offset is the index into the frame data of the offending byte.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int
	Value  uint8
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case NotEnoughData:
		return fmt.Sprintf("error frame too short: no data at offset %d", e.Offset)
	case InvalidControllerProblem:
		return fmt.Sprintf("invalid controller problem %#02x at offset %d", e.Value, e.Offset)
	case InvalidViolationType:
		return fmt.Sprintf("invalid protocol violation type %#02x at offset %d", e.Value, e.Offset)
	case InvalidLocation:
		return fmt.Sprintf("invalid protocol violation location %#02x at offset %d", e.Value, e.Offset)
	case InvalidTransceiverError:
		return fmt.Sprintf("invalid transceiver error %#02x at offset %d", e.Value, e.Offset)
	}
	return fmt.Sprintf("error frame decode failure at offset %d", e.Offset)
}

// CanError is a bus error decoded from an error frame. Class selects which
// of the sub-code fields are meaningful. A sub-code that failed to decode
// leaves Class intact and sets DecodeErr.
type CanError struct {
	Class ErrorClass
	// Bits is the error class bitset from the id word, CAN_ERR_CNT included.
	Bits uint32

	LostArbitrationBit uint8             // ClassLostArbitration
	Controller         ControllerProblem // ClassController
	Violation          ViolationType     // ClassProtocolViolation
	Location           Location          // ClassProtocolViolation
	Transceiver        TransceiverError  // ClassTransceiver

	// Error counters, valid when HasCounters is set.
	HasCounters bool
	TxErrors    uint8
	RxErrors    uint8

	DecodeErr *DecodeError
}

func (e *CanError) Error() string {
	var s string
	switch e.Class {
	case ClassLostArbitration:
		s = fmt.Sprintf("can: lost arbitration at bit %d", e.LostArbitrationBit)
	case ClassController:
		s = "can: controller problem: " + e.Controller.String()
	case ClassProtocolViolation:
		s = fmt.Sprintf("can: protocol violation: %s at %s", e.Violation, e.Location)
	case ClassTransceiver:
		s = "can: transceiver error: " + e.Transceiver.String()
	case ClassUnknown:
		s = fmt.Sprintf("can: unknown error bits %#x", e.Bits)
	default:
		s = "can: " + e.Class.String()
	}
	if e.DecodeErr != nil {
		s += " (" + e.DecodeErr.Error() + ")"
	}
	return s
}

func (e *CanError) Unwrap() error {
	if e.DecodeErr == nil {
		return nil
	}
	return e.DecodeErr
}

// DecodeErrorFrame decodes f, which must carry the ERR flag.
func DecodeErrorFrame(f Frame) (*CanError, error) {
	switch f := f.(type) {
	case ErrorFrame:
		return f.Decode(), nil
	case CanFrame:
		if f.IsError() {
			return decodeErrorFrame(ErrorFrame{f: f}), nil
		}
	}
	return nil, ErrNotErrorFrame
}

func decodeErrorFrame(e ErrorFrame) *CanError {
	data := e.Data()
	ce := &CanError{Bits: e.ErrorBits()}

	at := func(off int) (uint8, bool) {
		if off >= len(data) {
			ce.DecodeErr = &DecodeError{Kind: NotEnoughData, Offset: off}
			return 0, false
		}
		return data[off], true
	}
	invalid := func(kind DecodeErrorKind, off int, v uint8) {
		ce.DecodeErr = &DecodeError{Kind: kind, Offset: off, Value: v}
	}

	class, ok := classByBit[ce.Bits&^CAN_ERR_CNT]
	if !ok {
		return ce
	}
	ce.Class = class

	switch class {
	case ClassLostArbitration:
		if b, ok := at(0); ok {
			ce.LostArbitrationBit = b
		}
	case ClassController:
		if b, ok := at(1); ok {
			ce.Controller = ControllerProblem(b)
			if _, known := controllerProblems[ce.Controller]; !known {
				invalid(InvalidControllerProblem, 1, b)
			}
		}
	case ClassProtocolViolation:
		if b, ok := at(2); ok {
			ce.Violation = ViolationType(b)
			if _, known := violationTypes[ce.Violation]; !known {
				invalid(InvalidViolationType, 2, b)
				break
			}
		} else {
			break
		}
		if b, ok := at(3); ok {
			ce.Location = Location(b)
			if _, known := locations[ce.Location]; !known {
				invalid(InvalidLocation, 3, b)
			}
		}
	case ClassTransceiver:
		if b, ok := at(4); ok {
			ce.Transceiver = TransceiverError(b)
			if _, known := transceiverErrors[ce.Transceiver]; !known {
				invalid(InvalidTransceiverError, 4, b)
			}
		}
	}

	if ce.Bits&CAN_ERR_CNT != 0 && len(data) >= CAN_ERR_DLC {
		ce.HasCounters = true
		ce.TxErrors = data[6]
		ce.RxErrors = data[7]
	}
	return ce
}
