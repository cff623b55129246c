//go:build !linux

package canlink

func Query(iface string) (Info, error) { return Info{}, ErrUnsupported }
