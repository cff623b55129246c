package can

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFrame(t *testing.T, id uint32, n int) Frame {
	t.Helper()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i + 1)
	}
	f, err := NewFrame(id, data)
	require.NoError(t, err)
	return f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for n := 0; n <= MaxDataLen; n++ {
		in := mkFrame(t, 0x1ABCDE|CAN_EFF_FLAG, n)
		wire, err := MarshalFrame(in, n%2 == 0)
		require.NoError(t, err)
		require.Len(t, wire, MTU)

		out, err := DecodeFrame(wire)
		require.NoError(t, err)
		assert.Equal(t, in.CANID, out.CANID)
		padded := int(PaddedLen(n))
		require.Equal(t, padded, int(out.Len))
		assert.Equal(t, in.Payload(), out.Payload()[:n])
		assert.Equal(t, make([]byte, padded-n), out.Payload()[n:], "padding must be zero for len %d", n)
	}
}

func TestEncodeLayout(t *testing.T) {
	f := mkFrame(t, 0xF1, 2)
	f.Data[0], f.Data[1] = 0x01, 0xFF
	wire, err := MarshalFrame(f, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF1), binary.LittleEndian.Uint32(wire[0:4]))
	assert.Equal(t, byte(2), wire[4])
	assert.Equal(t, byte(FlagBRS), wire[5])
	assert.Equal(t, []byte{0x01, 0xFF}, wire[8:10])

	wire, err = MarshalFrame(f, false)
	require.NoError(t, err)
	assert.Equal(t, byte(0), wire[5])
}

func TestEncodeLeavesTailUntouched(t *testing.T) {
	buf := bytes.Repeat([]byte{0xAA}, MTU)
	f := mkFrame(t, 0x10, 9)
	require.NoError(t, EncodeFrame(buf, f, false))
	assert.Equal(t, byte(12), buf[4])
	assert.Equal(t, f.Payload(), buf[8:17])
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, MTU-17), buf[17:])
}

func TestEncodeEmptyPayload(t *testing.T) {
	f := mkFrame(t, 0x7FF, 0)
	wire, err := MarshalFrame(f, false)
	require.NoError(t, err)
	out, err := DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), out.Len)
	assert.Empty(t, out.Payload())
}

func TestEncodeErrors(t *testing.T) {
	_, err := NewFrame(1, make([]byte, 65))
	require.ErrorIs(t, err, ErrDataTooLong)

	f := Frame{CANID: 1, Len: 65}
	_, err = MarshalFrame(f, false)
	require.ErrorIs(t, err, ErrDataTooLong)

	err = EncodeFrame(make([]byte, MTU-1), Frame{}, false)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeErrorsAndClamp(t *testing.T) {
	_, err := DecodeFrame(make([]byte, ClassicMTU))
	require.ErrorIs(t, err, ErrShortBuffer)

	wire := make([]byte, MTU)
	wire[4] = 200
	wire[5] = FlagBRS | FlagESI
	f, err := DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, uint8(MaxDataLen), f.Len)
	assert.Equal(t, uint8(FlagBRS|FlagESI), f.Flags)
}

func TestFrameID(t *testing.T) {
	assert.Equal(t, uint32(0x123), Frame{CANID: 0x123}.ID())
	assert.Equal(t, uint32(0x1ABCDE), Frame{CANID: 0x1ABCDE | CAN_EFF_FLAG}.ID())
}

func TestFlagBitsMatchFrameFlags(t *testing.T) {
	f := Frame{Flags: FlagBRS | FlagFDF}
	assert.Equal(t, FlagBRS|FlagFDF, f.Flags)
	assert.Equal(t, uint8(0x05), f.Flags)
}
