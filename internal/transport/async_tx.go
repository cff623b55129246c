package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-canfd-server/internal/can"
)

// ErrAsyncTxClosed is returned by SendFrame after Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

// AsyncTx funnels frame writes from many producers through one goroutine.
// SendFrame never blocks: a full queue invokes Hooks.OnDrop and returns its error.
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.SendFrame(frame)
//	a.Close()
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan can.Frame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(can.Frame) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error (frame not sent).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the queue is full; its returned error is returned
	// from SendFrame. If nil, the overflow is silent.
	OnDrop func() error
}

// NewAsyncTx starts the worker with a queue of buf frames.
func NewAsyncTx(parent context.Context, buf int, send func(can.Frame) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan can.Frame, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case fr, ok := <-a.ch:
			if !ok {
				return
			}
			a.deliver(fr)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *AsyncTx) deliver(fr can.Frame) {
	if err := a.send(fr); err != nil {
		if a.hooks.OnError != nil {
			a.hooks.OnError(err)
		}
		return
	}
	if a.hooks.OnAfter != nil {
		a.hooks.OnAfter()
	}
}

// SendFrame queues fr or reports overflow.
func (a *AsyncTx) SendFrame(fr can.Frame) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- fr:
		return nil
	default:
	}
	if a.hooks.OnDrop != nil {
		return a.hooks.OnDrop()
	}
	return nil
}

// Pending returns the number of queued frames.
func (a *AsyncTx) Pending() int { return len(a.ch) }

// Close stops the worker and waits for it. Queued frames are discarded.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
