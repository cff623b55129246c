//go:build !linux

package socketcan

import "github.com/kstaniek/go-canfd-server/internal/can"

// Channel is unavailable outside Linux; Open always fails.
type Channel struct{}

func Open(iface string, ids []uint32, mode Mode) (*Channel, error) { return nil, ErrUnsupported }

func (c *Channel) Read() (can.Frame, error)          { return can.Frame{}, ErrInvalidChannel }
func (c *Channel) Write(f can.Frame, brs bool) error { return ErrInvalidChannel }
func (c *Channel) Close() error                      { return nil }
func (c *Channel) Move() *Channel                    { return &Channel{} }
func (c *Channel) Valid() bool                       { return false }
func (c *Channel) Interface() string                 { return "" }
func (c *Channel) Ifindex() int                      { return 0 }
func (c *Channel) Mode() Mode                        { return ReadWrite }
