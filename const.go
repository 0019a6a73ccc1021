package socketcan

import "golang.org/x/sys/unix"

// Address family, protocol and socket option names from <linux/can.h> and
// <linux/can/raw.h>. The kernel spelling is kept on purpose.
const (
	AF_CAN  = unix.AF_CAN
	PF_CAN  = AF_CAN
	CAN_RAW = unix.CAN_RAW

	SOL_CAN_BASE = unix.SOL_CAN_BASE
	SOL_CAN_RAW  = unix.SOL_CAN_RAW

	CAN_RAW_FILTER        = unix.CAN_RAW_FILTER
	CAN_RAW_ERR_FILTER    = unix.CAN_RAW_ERR_FILTER
	CAN_RAW_LOOPBACK      = unix.CAN_RAW_LOOPBACK
	CAN_RAW_RECV_OWN_MSGS = unix.CAN_RAW_RECV_OWN_MSGS
	CAN_RAW_FD_FRAMES     = unix.CAN_RAW_FD_FRAMES
	CAN_RAW_JOIN_FILTERS  = unix.CAN_RAW_JOIN_FILTERS
)

// ID word flags and masks.
const (
	CAN_EFF_FLAG uint32 = unix.CAN_EFF_FLAG // Extended frame flag.
	CAN_RTR_FLAG uint32 = unix.CAN_RTR_FLAG // Remote frame flag.
	CAN_ERR_FLAG uint32 = unix.CAN_ERR_FLAG // Error frame flag.
	/* mask */
	CAN_SFF_MASK uint32 = unix.CAN_SFF_MASK // Use "can_id & CAN_SFF_MASK" to get standard frame ID.
	CAN_EFF_MASK uint32 = unix.CAN_EFF_MASK // Use "can_id & CAN_EFF_MASK" to get extended frame ID.
	CAN_ERR_MASK uint32 = unix.CAN_ERR_MASK // omit EFF, RTR, ERR flags.

	CAN_INV_FILTER uint32 = unix.CAN_INV_FILTER // Filter flag, inverts the match.
)

// Frame sizes on the wire and payload capacities. x/sys/unix has no
// canfd_frame names, so the FD values are spelled out.
const (
	CAN_MTU   = unix.CAN_MTU
	CANFD_MTU = 72

	CAN_MAX_DLEN   = unix.CAN_MAX_DLEN
	CANFD_MAX_DLEN = 64
)

// FD frame flags.
const (
	CANFD_BRS = 0x01 // bit rate switch (second bitrate for payload data)
	CANFD_ESI = 0x02 // error state indicator of the transmitting node
	CANFD_FDF = 0x04 // mark CAN FD for dual use of struct canfd_frame
)

// Error class bits carried in the id word of an error frame, <linux/can/error.h>.
const (
	CAN_ERR_TX_TIMEOUT uint32 = unix.CAN_ERR_TX_TIMEOUT
	CAN_ERR_LOSTARB    uint32 = unix.CAN_ERR_LOSTARB
	CAN_ERR_CRTL       uint32 = unix.CAN_ERR_CRTL
	CAN_ERR_PROT       uint32 = unix.CAN_ERR_PROT
	CAN_ERR_TRX        uint32 = unix.CAN_ERR_TRX
	CAN_ERR_ACK        uint32 = unix.CAN_ERR_ACK
	CAN_ERR_BUSOFF     uint32 = unix.CAN_ERR_BUSOFF
	CAN_ERR_BUSERROR   uint32 = unix.CAN_ERR_BUSERROR
	CAN_ERR_RESTARTED  uint32 = unix.CAN_ERR_RESTARTED
	CAN_ERR_CNT        uint32 = unix.CAN_ERR_CNT // TX error counter / data[6], RX error counter / data[7]

	CAN_ERR_DLC = unix.CAN_ERR_DLC
)

// Error filter masks for SetErrorFilter.
const (
	ERR_MASK_ALL  uint32 = CAN_ERR_MASK
	ERR_MASK_NONE uint32 = 0
)

// ARPHRD_CAN is the hardware type the kernel reports for CAN network devices.
const ARPHRD_CAN = unix.ARPHRD_CAN
