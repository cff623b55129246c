//go:build linux

package socketcan

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-canfd-server/internal/can"
)

// fakeSys records every syscall and fails the one named in failOn.
type fakeSys struct {
	mu      sync.Mutex
	nextFD  int
	open    map[int]bool
	closes  map[int]int
	calls   []string
	failOn  map[string]error
	ifaces  map[string]int
	mtu     int
	filters []Filter
	opts    map[int]int
	timeout time.Duration
	bound   int
	how     []int

	rx       [][]byte
	rxErr    error
	txShort  int
	tx       [][]byte
	shutdown error
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		nextFD: 3,
		open:   map[int]bool{},
		closes: map[int]int{},
		failOn: map[string]error{},
		ifaces: map[string]int{"vcan0": 7},
		mtu:    can.MTU,
		opts:   map[int]int{},
	}
}

// install swaps the package syscall surface for f until the test ends.
func (f *fakeSys) install(t *testing.T) *fakeSys {
	t.Helper()
	prev := sys
	sys = f
	t.Cleanup(func() { sys = prev })
	return f
}

func (f *fakeSys) step(name string) error {
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeSys) Socket() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("socket"); err != nil {
		return -1, err
	}
	fd := f.nextFD
	f.nextFD++
	f.open[fd] = true
	return fd, nil
}

func (f *fakeSys) Ifindex(name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("ifindex"); err != nil {
		return 0, err
	}
	idx, ok := f.ifaces[name]
	if !ok {
		return 0, fmt.Errorf("route ip+net: no such network interface")
	}
	return idx, nil
}

func (f *fakeSys) MTU(fd int, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("mtu"); err != nil {
		return 0, err
	}
	return f.mtu, nil
}

func (f *fakeSys) SetFilters(fd int, fs []Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("filters"); err != nil {
		return err
	}
	f.filters = append([]Filter(nil), fs...)
	return nil
}

func (f *fakeSys) SetInt(fd, level, opt, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := map[int]string{
		unix.CAN_RAW_LOOPBACK:      "loopback",
		unix.CAN_RAW_RECV_OWN_MSGS: "recv_own_msgs",
		unix.CAN_RAW_FD_FRAMES:     "fd_frames",
	}[opt]
	if err := f.step(name); err != nil {
		return err
	}
	f.opts[opt] = value
	return nil
}

func (f *fakeSys) SetRecvTimeout(fd int, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("timeout"); err != nil {
		return err
	}
	f.timeout = d
	return nil
}

func (f *fakeSys) Bind(fd, ifindex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("bind"); err != nil {
		return err
	}
	f.bound = ifindex
	return nil
}

func (f *fakeSys) Shutdown(fd, how int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.step("shutdown"); err != nil {
		return err
	}
	f.how = append(f.how, how)
	return f.shutdown
}

func (f *fakeSys) Read(fd int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[fd] {
		return 0, unix.EBADF
	}
	if f.rxErr != nil {
		return 0, f.rxErr
	}
	if len(f.rx) == 0 {
		return 0, unix.EAGAIN
	}
	n := copy(p, f.rx[0])
	f.rx = f.rx[1:]
	return n, nil
}

func (f *fakeSys) Write(fd int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[fd] {
		return 0, unix.EBADF
	}
	f.tx = append(f.tx, append([]byte(nil), p...))
	if f.txShort > 0 {
		return f.txShort, nil
	}
	return len(p), nil
}

func (f *fakeSys) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[fd]++
	if !f.open[fd] {
		return unix.EBADF
	}
	delete(f.open, fd)
	return nil
}

func (f *fakeSys) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}
