//go:build linux

package socketcan

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/logging"
)

// RecvTimeout bounds every Read.
const RecvTimeout = time.Millisecond

// noCopy lets go vet flag Channel values copied after first use.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Channel owns one raw CAN socket bound to an FD capable interface.
// Read and Write use separate buffers and may run concurrently with each other.
// Neither may run concurrently with Close or Move.
type Channel struct {
	_ noCopy

	fd      int
	iface   string
	ifindex int
	mode    Mode
	rbuf    [can.MTU]byte
	wbuf    [can.MTU]byte
}

// Open creates a raw CAN socket on iface in CAN FD mode, installs one receive
// filter per id (see FiltersFor), binds it and shuts down the direction unused
// by mode. On error the socket is closed and no Channel is returned.
func Open(iface string, ids []uint32, mode Mode) (*Channel, error) {
	fd, err := sys.Socket()
	if err != nil {
		return nil, wrap(ErrSocketCreate, err)
	}
	ifindex, err := configure(fd, iface, ids, mode)
	if err != nil {
		_ = sys.Close(fd)
		return nil, fmt.Errorf("can@%s: %w", iface, err)
	}
	logging.L().Debug("socketcan_open", "if", iface, "ifindex", ifindex, "mode", mode.String(), "filters", len(ids))
	return &Channel{fd: fd, iface: iface, ifindex: ifindex, mode: mode}, nil
}

func configure(fd int, iface string, ids []uint32, mode Mode) (int, error) {
	ifindex, err := sys.Ifindex(iface)
	if err != nil {
		return 0, wrap(ErrInterfaceNotFound, err)
	}
	if ifindex == 0 {
		return 0, ErrInterfaceNotFound
	}
	mtu, err := sys.MTU(fd, iface)
	if err != nil {
		return 0, wrap(ErrMTUQuery, err)
	}
	if mtu != can.MTU {
		return 0, fmt.Errorf("%w (mtu %d)", ErrNotFDCapable, mtu)
	}
	// Installed for WriteOnly channels too; the receive side is shut down below.
	if err := sys.SetFilters(fd, FiltersFor(ids)); err != nil {
		return 0, wrap(ErrFilterInstall, err)
	}
	// Other sockets on the interface see our frames, our own queue does not.
	if err := sys.SetInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_LOOPBACK, 1); err != nil {
		return 0, wrap(ErrSocketOption, fmt.Errorf("loopback: %w", err))
	}
	if err := sys.SetInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, 0); err != nil {
		return 0, wrap(ErrSocketOption, fmt.Errorf("recv_own_msgs: %w", err))
	}
	if err := sys.SetInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
		return 0, wrap(ErrFDMode, err)
	}
	if err := sys.SetRecvTimeout(fd, RecvTimeout); err != nil {
		return 0, wrap(ErrTimeoutConfig, err)
	}
	if err := sys.Bind(fd, ifindex); err != nil {
		return 0, wrap(ErrBind, err)
	}
	if err := shutdownUnused(fd, mode); err != nil {
		return 0, err
	}
	return ifindex, nil
}

// shutdownUnused closes the direction mode does not use. CAN_RAW sockets answer
// EOPNOTSUPP on most kernels; Read and Write enforce the mode in that case.
func shutdownUnused(fd int, mode Mode) error {
	var how int
	switch mode {
	case ReadWrite:
		return nil
	case WriteOnly:
		how = unix.SHUT_RD
	case ReadOnly:
		how = unix.SHUT_WR
	default:
		return fmt.Errorf("%w: unknown %s", ErrShutdown, mode)
	}
	err := sys.Shutdown(fd, how)
	if errors.Is(err, unix.EOPNOTSUPP) {
		logging.L().Debug("socketcan_shutdown_unsupported", "mode", mode.String())
		return nil
	}
	if err != nil {
		return wrap(ErrShutdown, err)
	}
	return nil
}

// Read waits at most RecvTimeout for one frame. ErrTimeout means nothing arrived.
func (c *Channel) Read() (can.Frame, error) {
	if c.fd < 0 {
		return can.Frame{}, ErrInvalidChannel
	}
	if !c.mode.CanRead() {
		return can.Frame{}, ErrWrongDirection
	}
	n, err := sys.Read(c.fd, c.rbuf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return can.Frame{}, ErrTimeout
		}
		return can.Frame{}, wrap(ErrRead, err)
	}
	if n < can.MTU {
		return can.Frame{}, fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, n, can.MTU)
	}
	return can.DecodeFrame(c.rbuf[:n])
}

// Write sends f as one full canfd_frame. brs requests the data phase bitrate.
// A partial write is an error and is not retried.
func (c *Channel) Write(f can.Frame, brs bool) error {
	if c.fd < 0 {
		return ErrInvalidChannel
	}
	if !c.mode.CanWrite() {
		return ErrWrongDirection
	}
	c.wbuf = [can.MTU]byte{}
	if err := can.EncodeFrame(c.wbuf[:], f, brs); err != nil {
		return wrap(ErrWrite, err)
	}
	n, err := sys.Write(c.fd, c.wbuf[:])
	if err != nil {
		return wrap(ErrWrite, err)
	}
	if n != can.MTU {
		return fmt.Errorf("%w: short write %d of %d bytes", ErrWrite, n, can.MTU)
	}
	return nil
}

// Close releases the socket. Closing an already closed channel is a no-op.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	logging.L().Debug("socketcan_close", "if", c.iface)
	return sys.Close(fd)
}

// Move transfers socket ownership to a new Channel and leaves c closed.
func (c *Channel) Move() *Channel {
	n := &Channel{fd: c.fd, iface: c.iface, ifindex: c.ifindex, mode: c.mode}
	c.fd = -1
	return n
}

// Valid reports whether the channel still owns its socket.
func (c *Channel) Valid() bool { return c.fd >= 0 }

func (c *Channel) Interface() string { return c.iface }
func (c *Channel) Ifindex() int      { return c.ifindex }
func (c *Channel) Mode() Mode        { return c.mode }
