package socketcan

import (
	"errors"
	"fmt"
)

// Construction errors. Open never returns a channel together with one of these.
var (
	ErrSocketCreate      = errors.New("socketcan: create socket")
	ErrInterfaceNotFound = errors.New("socketcan: interface not found")
	ErrMTUQuery          = errors.New("socketcan: query mtu")
	ErrNotFDCapable      = errors.New("socketcan: interface is not CAN FD capable")
	ErrFilterInstall     = errors.New("socketcan: install filters")
	ErrSocketOption      = errors.New("socketcan: set socket option")
	ErrFDMode            = errors.New("socketcan: enable CAN FD frames")
	ErrTimeoutConfig     = errors.New("socketcan: set receive timeout")
	ErrBind              = errors.New("socketcan: bind")
	ErrShutdown          = errors.New("socketcan: shutdown direction")
)

// I/O errors.
var (
	ErrInvalidChannel = errors.New("socketcan: channel closed")
	ErrTimeout        = errors.New("socketcan: receive timeout")
	ErrRead           = errors.New("socketcan: read")
	ErrShortFrame     = errors.New("socketcan: short frame")
	ErrWrite          = errors.New("socketcan: write")
	ErrUnsupported    = errors.New("socketcan: unsupported on this platform")
)

// ErrWrongDirection is returned by Read on a WriteOnly channel and by Write on a
// ReadOnly one. It matches ErrInvalidChannel.
var ErrWrongDirection = fmt.Errorf("%w: direction shut down", ErrInvalidChannel)

var constructionErrors = []error{
	ErrSocketCreate, ErrInterfaceNotFound, ErrMTUQuery, ErrNotFDCapable, ErrFilterInstall,
	ErrSocketOption, ErrFDMode, ErrTimeoutConfig, ErrBind, ErrShutdown,
}

// IsTimeout reports whether err is an empty receive window; callers poll again.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsConstructionError reports whether err came from a failed Open.
func IsConstructionError(err error) bool {
	for _, e := range constructionErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
