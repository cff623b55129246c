//go:build linux

package socketcan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-canfd-server/internal/can"
)

func TestOpenConfiguresSocketInOrder(t *testing.T) {
	fs := newFakeSys().install(t)
	ch, err := Open("vcan0", []uint32{0x01, 0x02}, ReadWrite)
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, []string{
		"socket", "ifindex", "mtu", "filters", "loopback", "recv_own_msgs",
		"fd_frames", "timeout", "bind",
	}, fs.calls)
	assert.Equal(t, []Filter{{ID: 0x05, Mask: 0xFFFF}, {ID: 0x07, Mask: 0xFFFF}}, fs.filters)
	assert.Equal(t, 1, fs.opts[unix.CAN_RAW_LOOPBACK])
	assert.Equal(t, 0, fs.opts[unix.CAN_RAW_RECV_OWN_MSGS])
	assert.Equal(t, 1, fs.opts[unix.CAN_RAW_FD_FRAMES])
	assert.Equal(t, RecvTimeout, fs.timeout)
	assert.Equal(t, 7, fs.bound)
	assert.Empty(t, fs.how)
	assert.True(t, ch.Valid())
	assert.Equal(t, 7, ch.Ifindex())
	assert.Equal(t, "vcan0", ch.Interface())
	assert.Equal(t, ReadWrite, ch.Mode())
}

func TestOpenShutsDownUnusedDirection(t *testing.T) {
	cases := []struct {
		mode Mode
		how  int
	}{
		{WriteOnly, unix.SHUT_RD},
		{ReadOnly, unix.SHUT_WR},
	}
	for _, tc := range cases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			fs := newFakeSys().install(t)
			ch, err := Open("vcan0", []uint32{0x01}, tc.mode)
			require.NoError(t, err)
			defer ch.Close()
			assert.Equal(t, []int{tc.how}, fs.how)
			// filters are installed even for write-only channels
			assert.Len(t, fs.filters, 1)
		})
	}
}

func TestOpenToleratesUnsupportedShutdown(t *testing.T) {
	fs := newFakeSys().install(t)
	fs.shutdown = unix.EOPNOTSUPP
	ch, err := Open("vcan0", nil, WriteOnly)
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.Read()
	require.ErrorIs(t, err, ErrWrongDirection)
	require.ErrorIs(t, err, ErrInvalidChannel)
	require.NoError(t, ch.Write(can.Frame{CANID: 0x10, Len: 1}, false))
}

func TestOpenFailuresCloseSocket(t *testing.T) {
	cases := []struct {
		step string
		want error
	}{
		{"ifindex", ErrInterfaceNotFound},
		{"mtu", ErrMTUQuery},
		{"filters", ErrFilterInstall},
		{"loopback", ErrSocketOption},
		{"recv_own_msgs", ErrSocketOption},
		{"fd_frames", ErrFDMode},
		{"timeout", ErrTimeoutConfig},
		{"bind", ErrBind},
		{"shutdown", ErrShutdown},
	}
	for _, tc := range cases {
		t.Run(tc.step, func(t *testing.T) {
			fs := newFakeSys().install(t)
			fs.failOn[tc.step] = unix.EINVAL
			ch, err := Open("vcan0", []uint32{0x01}, ReadOnly)
			require.Nil(t, ch)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, unix.EINVAL)
			assert.True(t, IsConstructionError(err))
			assert.Zero(t, fs.openCount(), "descriptor leaked")
			assert.Equal(t, 1, fs.closes[3])
		})
	}
}

func TestOpenSocketCreateFailure(t *testing.T) {
	fs := newFakeSys().install(t)
	fs.failOn["socket"] = unix.EAFNOSUPPORT
	ch, err := Open("vcan0", nil, ReadWrite)
	require.Nil(t, ch)
	require.ErrorIs(t, err, ErrSocketCreate)
	assert.Empty(t, fs.closes)
}

func TestOpenUnknownInterface(t *testing.T) {
	fs := newFakeSys().install(t)
	_, err := Open("nope0", nil, ReadWrite)
	require.ErrorIs(t, err, ErrInterfaceNotFound)
	assert.Zero(t, fs.openCount())
}

func TestOpenRejectsClassicMTU(t *testing.T) {
	fs := newFakeSys().install(t)
	fs.mtu = can.ClassicMTU
	_, err := Open("vcan0", nil, ReadWrite)
	require.ErrorIs(t, err, ErrNotFDCapable)
	assert.Zero(t, fs.openCount())
}

func TestReadDecodesFrame(t *testing.T) {
	fs := newFakeSys().install(t)
	ch, err := Open("vcan0", []uint32{0x01}, ReadOnly)
	require.NoError(t, err)
	defer ch.Close()

	in, _ := can.NewFrame(0x06, []byte{1, 2, 3})
	wire, err := can.MarshalFrame(in, true)
	require.NoError(t, err)
	fs.rx = append(fs.rx, wire)

	out, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x06), out.CANID)
	assert.Equal(t, []byte{1, 2, 3}, out.Payload())
	assert.Equal(t, uint8(can.FlagBRS), out.Flags)

	_, err = ch.Read()
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
}

func TestReadShortFrameAndSyscallError(t *testing.T) {
	fs := newFakeSys().install(t)
	ch, err := Open("vcan0", nil, ReadWrite)
	require.NoError(t, err)
	defer ch.Close()

	fs.rx = append(fs.rx, make([]byte, can.ClassicMTU))
	_, err = ch.Read()
	require.ErrorIs(t, err, ErrShortFrame)

	fs.rxErr = unix.ENETDOWN
	_, err = ch.Read()
	require.ErrorIs(t, err, ErrRead)
	require.ErrorIs(t, err, unix.ENETDOWN)
	assert.False(t, IsTimeout(err))
}

func TestWriteEncodesFullFrame(t *testing.T) {
	fs := newFakeSys().install(t)
	ch, err := Open("vcan0", nil, WriteOnly)
	require.NoError(t, err)
	defer ch.Close()

	f, _ := can.NewFrame(0xF1, []byte{0x01, 0xFF})
	require.NoError(t, ch.Write(f, true))
	require.Len(t, fs.tx, 1)
	wire := fs.tx[0]
	require.Len(t, wire, can.MTU)
	got, err := can.DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF1), got.CANID)
	assert.Equal(t, []byte{0x01, 0xFF}, got.Payload())
	assert.Equal(t, uint8(can.FlagBRS), got.Flags)

	// padded length, zeroed tail even after a longer previous write
	long, _ := can.NewFrame(0xF2, make([]byte, 40))
	for i := range long.Data[:40] {
		long.Data[i] = 0xEE
	}
	require.NoError(t, ch.Write(long, false))
	short, _ := can.NewFrame(0xF3, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, ch.Write(short, false))
	got, _ = can.DecodeFrame(fs.tx[2])
	assert.Equal(t, uint8(12), got.Len)
	assert.Equal(t, []byte{0, 0, 0}, got.Payload()[9:])
}

func TestWriteErrors(t *testing.T) {
	fs := newFakeSys().install(t)
	ch, err := Open("vcan0", nil, ReadWrite)
	require.NoError(t, err)
	defer ch.Close()

	require.ErrorIs(t, ch.Write(can.Frame{Len: 65}, false), can.ErrDataTooLong)

	fs.txShort = can.ClassicMTU
	err = ch.Write(can.Frame{CANID: 1}, false)
	require.ErrorIs(t, err, ErrWrite)
	assert.Len(t, fs.tx, 1, "partial writes are not retried")

	ro, err := Open("vcan0", nil, ReadOnly)
	require.NoError(t, err)
	defer ro.Close()
	require.ErrorIs(t, ro.Write(can.Frame{}, false), ErrWrongDirection)
}

func TestMoveTransfersOwnership(t *testing.T) {
	fs := newFakeSys().install(t)
	src, err := Open("vcan0", []uint32{0x01}, ReadWrite)
	require.NoError(t, err)

	dst := src.Move()
	assert.False(t, src.Valid())
	assert.True(t, dst.Valid())
	assert.Equal(t, src.Interface(), dst.Interface())

	_, err = src.Read()
	require.ErrorIs(t, err, ErrInvalidChannel)
	require.ErrorIs(t, src.Write(can.Frame{}, false), ErrInvalidChannel)

	require.NoError(t, dst.Write(can.Frame{CANID: 0x06}, false))
	_, err = dst.Read()
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, src.Close())
	require.NoError(t, dst.Close())
	require.NoError(t, dst.Close())
	assert.Equal(t, 1, fs.closes[3], "descriptor must be closed exactly once")

	again := src.Move()
	assert.False(t, again.Valid())
}

func TestClosedChannelErrors(t *testing.T) {
	newFakeSys().install(t)
	ch, err := Open("vcan0", nil, ReadWrite)
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	_, err = ch.Read()
	assert.True(t, errors.Is(err, ErrInvalidChannel))
	assert.False(t, IsConstructionError(err))
}
