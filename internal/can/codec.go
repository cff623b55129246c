package can

import (
	"encoding/binary"
	"fmt"
)

// struct canfd_frame (linux/can.h):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	len     u8    [4]
//	flags   u8    [5]
//	res0    u8    [6]
//	res1    u8    [7]
//	data    [64]  [8:72]
//
// The kernel uses host byte order; little-endian matches every arch we ship on.

// EncodeFrame writes f into buf as a canfd_frame. The length byte is the payload
// length rounded up to a DLC-representable value. Only Data[:Len] is copied;
// remaining bytes of buf are left as they are, so callers reusing a buffer should
// zero it when padding content matters.
func EncodeFrame(buf []byte, f Frame, brs bool) error {
	if f.Len > MaxDataLen {
		return fmt.Errorf("encode: %w (%d)", ErrDataTooLong, f.Len)
	}
	if len(buf) < MTU {
		return fmt.Errorf("encode: %w (%d)", ErrShortBuffer, len(buf))
	}
	binary.LittleEndian.PutUint32(buf[0:4], f.CANID)
	buf[4] = PaddedLen(int(f.Len))
	buf[5] = 0
	if brs {
		buf[5] = FlagBRS
	}
	buf[6], buf[7] = 0, 0
	copy(buf[headerLen:], f.Data[:f.Len])
	return nil
}

// MarshalFrame returns a freshly allocated, zero padded canfd_frame.
func MarshalFrame(f Frame, brs bool) ([]byte, error) {
	buf := make([]byte, MTU)
	if err := EncodeFrame(buf, f, brs); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeFrame parses one canfd_frame. Exactly len payload bytes are copied.
func DecodeFrame(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) < MTU {
		return f, fmt.Errorf("decode: %w (%d)", ErrShortBuffer, len(buf))
	}
	f.CANID = binary.LittleEndian.Uint32(buf[0:4])
	n := buf[4]
	if n > MaxDataLen {
		n = MaxDataLen
	}
	f.Len = n
	f.Flags = buf[5]
	copy(f.Data[:n], buf[headerLen:headerLen+int(n)])
	return f, nil
}
