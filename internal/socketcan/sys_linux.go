//go:build linux

package socketcan

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// sysCalls is the kernel surface used by Channel. Tests replace sys with a fake.
type sysCalls interface {
	Socket() (int, error)
	Ifindex(name string) (int, error)
	MTU(fd int, name string) (int, error)
	SetFilters(fd int, fs []Filter) error
	SetInt(fd, level, opt, value int) error
	SetRecvTimeout(fd int, d time.Duration) error
	Bind(fd, ifindex int) error
	Shutdown(fd, how int) error
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Close(fd int) error
}

var sys sysCalls = unixSys{}

type unixSys struct{}

func (unixSys) Socket() (int, error) {
	return unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
}

func (unixSys) Ifindex(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return ifi.Index, nil
}

func (unixSys) MTU(fd int, name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFMTU, ifr); err != nil {
		return 0, err
	}
	return int(ifr.Uint32()), nil
}

func (unixSys) SetFilters(fd int, fs []Filter) error {
	kf := make([]unix.CanFilter, len(fs))
	for i, f := range fs {
		kf[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
	}
	return unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, kf)
}

func (unixSys) SetInt(fd, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

func (unixSys) SetRecvTimeout(fd int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (unixSys) Bind(fd, ifindex int) error {
	return unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifindex})
}

func (unixSys) Shutdown(fd, how int) error { return unix.Shutdown(fd, how) }
func (unixSys) Read(fd int, p []byte) (int, error) { return unix.Read(fd, p) }
func (unixSys) Write(fd int, p []byte) (int, error) { return unix.Write(fd, p) }
func (unixSys) Close(fd int) error                  { return unix.Close(fd) }
