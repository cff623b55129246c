package can

import (
	"errors"
	"fmt"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// CAN FD frame flags (struct canfd_frame.flags).
const (
	FlagBRS uint8 = 0x01 // bit rate switch (second bitrate for payload data)
	FlagESI uint8 = 0x02 // error state indicator of the transmitting node
	FlagFDF uint8 = 0x04 // frame is a CAN FD frame
)

const (
	// MaxDataLen is the CAN FD payload ceiling.
	MaxDataLen = 64
	// MTU is sizeof(struct canfd_frame); every socket read/write moves exactly this many bytes.
	MTU = 72
	// ClassicMTU is sizeof(struct can_frame).
	ClassicMTU = 16

	headerLen = 8
)

var (
	// ErrDataTooLong is returned when a payload exceeds MaxDataLen.
	ErrDataTooLong = errors.New("can: data longer than 64 bytes")
	// ErrShortBuffer is returned when a wire buffer cannot hold one canfd_frame.
	ErrShortBuffer = errors.New("can: buffer shorter than canfd frame")
)

// Frame is a CAN FD frame holder used across the gateway.
// CANID may carry EFF/RTR/ERR flags in its upper bits like SocketCAN; keeping
// bits beyond the identifier width clear is up to the caller.
// Len is the declared payload length; only the first Len bytes of Data are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Flags uint8
	Data  [MaxDataLen]byte
}

// NewFrame copies data into a new frame.
func NewFrame(id uint32, data []byte) (Frame, error) {
	var f Frame
	if len(data) > MaxDataLen {
		return f, fmt.Errorf("%w (%d)", ErrDataTooLong, len(data))
	}
	f.CANID = id
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, nil
}

// Payload returns the valid part of Data. Len values above MaxDataLen are clamped.
func (f *Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// ID returns the identifier without EFF/RTR/ERR flag bits.
func (f Frame) ID() uint32 {
	if f.CANID&CAN_EFF_FLAG != 0 {
		return f.CANID & CAN_EFF_MASK
	}
	return f.CANID & CAN_SFF_MASK
}

func (f Frame) String() string {
	return fmt.Sprintf("%08X [%02d] % X", f.CANID, f.Len, f.Payload())
}
