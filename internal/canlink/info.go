// Package canlink reads CAN link properties over rtnetlink so the daemon can
// tell an FD-capable controller from a classic one before opening a socket.
package canlink

import (
	"errors"
	"fmt"
)

var (
	ErrQuery       = errors.New("canlink: query")
	ErrNotFound    = errors.New("canlink: no such link")
	ErrUnsupported = errors.New("canlink: unsupported platform")
)

// State is the CAN controller error state reported by the driver.
type State uint32

const (
	StateErrorActive State = iota
	StateErrorWarning
	StateErrorPassive
	StateBusOff
	StateStopped
	StateSleeping
	StateUnknown State = 0xFFFFFFFF
)

func (s State) String() string {
	switch s {
	case StateErrorActive:
		return "error-active"
	case StateErrorWarning:
		return "error-warning"
	case StateErrorPassive:
		return "error-passive"
	case StateBusOff:
		return "bus-off"
	case StateStopped:
		return "stopped"
	case StateSleeping:
		return "sleeping"
	case StateUnknown:
		return "unknown"
	}
	return fmt.Sprintf("unknown(%d)", uint32(s))
}

// Controller mode bits from linux/can/netlink.h.
const (
	CtrlModeLoopback   uint32 = 0x01
	CtrlModeListenOnly uint32 = 0x02
	CtrlModeFD         uint32 = 0x20
	CtrlModeFDNonISO   uint32 = 0x80
)

// Info describes one network link. Kind is empty for links without
// IFLA_LINKINFO; the bitrate and controller fields are only set for kind "can".
type Info struct {
	Name        string
	Index       int
	MTU         uint32
	Up          bool
	Kind        string
	CtrlMode    uint32
	Bitrate     uint32
	DataBitrate uint32
	State       State
}

// FDCapable reports whether the link carries CAN FD frames. vcan links have
// no controller, so the MTU decides.
func (i Info) FDCapable() bool {
	if i.Kind == "can" && i.CtrlMode&CtrlModeFD == 0 {
		return false
	}
	return i.MTU == 72
}

func (i Info) ListenOnly() bool { return i.CtrlMode&CtrlModeListenOnly != 0 }
