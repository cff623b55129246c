//go:build linux

package canlink

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Attributes nested in IFLA_INFO_DATA for kind "can".
const (
	iflaCANBittiming     = 1
	iflaCANState         = 4
	iflaCANCtrlMode      = 5
	iflaCANDataBittiming = 9
)

const ifInfoMsgLen = unix.SizeofIfInfomsg

// Query asks the kernel for the properties of iface.
func Query(iface string) (Info, error) {
	nif, err := net.InterfaceByName(iface)
	if err != nil {
		return Info{}, fmt.Errorf("%w %q: %w", ErrNotFound, iface, err)
	}
	c, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
	if err != nil {
		return Info{}, fmt.Errorf("%w: dial: %w", ErrQuery, err)
	}
	defer c.Close()

	req := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_GETLINK,
			Flags: netlink.Request,
		},
		Data: ifInfoMsg(nif.Index),
	}
	msgs, err := c.Execute(req)
	if err != nil {
		return Info{}, fmt.Errorf("%w: getlink %s: %w", ErrQuery, iface, err)
	}
	for _, m := range msgs {
		if m.Header.Type != unix.RTM_NEWLINK {
			continue
		}
		return decodeLink(m.Data)
	}
	return Info{}, fmt.Errorf("%w: %q", ErrNotFound, iface)
}

func ifInfoMsg(index int) []byte {
	b := make([]byte, ifInfoMsgLen)
	b[0] = unix.AF_UNSPEC
	binary.NativeEndian.PutUint32(b[4:8], uint32(index))
	return b
}

// decodeLink parses an RTM_NEWLINK payload: ifinfomsg followed by attributes.
func decodeLink(b []byte) (Info, error) {
	if len(b) < ifInfoMsgLen {
		return Info{}, fmt.Errorf("%w: short ifinfomsg (%d bytes)", ErrQuery, len(b))
	}
	info := Info{
		Index: int(int32(binary.NativeEndian.Uint32(b[4:8]))),
		Up:    binary.NativeEndian.Uint32(b[8:12])&unix.IFF_UP != 0,
		State: StateUnknown,
	}
	ad, err := netlink.NewAttributeDecoder(b[ifInfoMsgLen:])
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	for ad.Next() {
		switch ad.Type() {
		case unix.IFLA_IFNAME:
			info.Name = ad.String()
		case unix.IFLA_MTU:
			info.MTU = ad.Uint32()
		case unix.IFLA_LINKINFO:
			ad.Nested(func(nad *netlink.AttributeDecoder) error {
				return decodeLinkInfo(nad, &info)
			})
		}
	}
	if err := ad.Err(); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return info, nil
}

func decodeLinkInfo(ad *netlink.AttributeDecoder, info *Info) error {
	for ad.Next() {
		switch ad.Type() {
		case unix.IFLA_INFO_KIND:
			info.Kind = ad.String()
		case unix.IFLA_INFO_DATA:
			ad.Nested(func(nad *netlink.AttributeDecoder) error {
				decodeCANData(nad, info)
				return nil
			})
		}
	}
	return nil
}

func decodeCANData(ad *netlink.AttributeDecoder, info *Info) {
	for ad.Next() {
		b := ad.Bytes()
		switch ad.Type() {
		case iflaCANCtrlMode:
			// struct can_ctrlmode { mask, flags }
			if len(b) >= 8 {
				info.CtrlMode = binary.NativeEndian.Uint32(b[4:8])
			}
		case iflaCANBittiming:
			if len(b) >= 4 {
				info.Bitrate = binary.NativeEndian.Uint32(b[0:4])
			}
		case iflaCANDataBittiming:
			if len(b) >= 4 {
				info.DataBitrate = binary.NativeEndian.Uint32(b[0:4])
			}
		case iflaCANState:
			if len(b) >= 4 {
				info.State = State(binary.NativeEndian.Uint32(b[0:4]))
			}
		}
	}
}
