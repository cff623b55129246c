package socketcan

import (
	"context"
	"errors"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// Dev is the minimal interface needed by the backend and TXWriter.
// Implemented by *Channel in production and by fakes in tests.
type Dev interface {
	Read() (can.Frame, error)
	Write(f can.Frame, brs bool) error
	Close() error
}

// TXWriter funnels all channel writes through a single goroutine so the
// channel itself never sees concurrent callers.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a TXWriter with a queue of buf frames. brs forces bit rate
// switching on every frame; otherwise a frame's own FlagBRS decides.
func NewTXWriter(parent context.Context, dev Dev, buf int, brs bool) *TXWriter {
	send := func(fr can.Frame) error { return dev.Write(fr, brs || fr.Flags&can.FlagBRS != 0) }
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSocketCANWrite)
			logging.L().Debug("socketcan_write_error", logging.Err(err))
		},
		OnAfter: func() { metrics.IncSocketCANTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write (ErrTxOverflow if the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
