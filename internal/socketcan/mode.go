package socketcan

import "fmt"

// Mode selects which directions of a channel stay open.
type Mode uint8

const (
	WriteOnly Mode = iota
	ReadOnly
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case WriteOnly:
		return "write-only"
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts wo|ro|rw and the long String forms.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "wo", "write-only":
		return WriteOnly, nil
	case "ro", "read-only":
		return ReadOnly, nil
	case "rw", "read-write":
		return ReadWrite, nil
	}
	return 0, fmt.Errorf("invalid mode %q (use rw|ro|wo)", s)
}

func (m Mode) CanRead() bool  { return m == ReadOnly || m == ReadWrite }
func (m Mode) CanWrite() bool { return m == WriteOnly || m == ReadWrite }
