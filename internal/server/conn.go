package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/hub"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/socketcan"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

// readLoop decodes client frames and forwards them to the backend sink.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, cl *hub.Client, l *slog.Logger) {
	defer cl.Close()
	forward := func(fr can.Frame) {
		metrics.IncTCPRx()
		if s.Send == nil {
			return
		}
		if err := s.Send.SendFrame(fr); err != nil {
			if errors.Is(err, socketcan.ErrTxOverflow) {
				s.backendOverflow.Add(1)
				l.Debug("backend_overflow_drop", "can_id", fmt.Sprintf("0x%X", fr.CANID), "len", fr.Len)
				return
			}
			s.backendErrors.Add(1)
			wrap := fmt.Errorf("%w: %w", ErrBackendTx, err)
			metrics.IncError(mapErrToMetric(wrap))
			l.Error("backend_tx_error", logging.Err(wrap), "can_id", fmt.Sprintf("0x%X", fr.CANID))
		}
	}
	multi, _ := s.Codec.(transport.MultiFrameDecoder)
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
		var err error
		if multi != nil {
			_, err = multi.DecodeN(conn, 16, forward)
		} else {
			var fr can.Frame
			if fr, err = s.Codec.Decode(conn); err == nil {
				forward(fr)
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			l.Info("client_idle_timeout", "deadline", s.readDeadline)
			return
		}
		wrap := fmt.Errorf("%w: %w", ErrConnRead, err)
		metrics.IncError(mapErrToMetric(wrap))
		l.Warn("client_read_error", logging.Err(wrap))
		return
	}
}

// writeLoop batches hub frames and flushes them on size or interval.
func (s *Server) writeLoop(ctx context.Context, conn net.Conn, cl *hub.Client, l *slog.Logger) {
	t := time.NewTicker(s.flushInterval)
	defer t.Stop()
	batch := make([]can.Frame, 0, s.batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		n := len(batch)
		_, err := s.Codec.EncodeTo(conn, batch)
		batch = batch[:0]
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				wrap := fmt.Errorf("%w: %w", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				l.Warn("client_write_error", logging.Err(wrap))
			}
			return false
		}
		metrics.AddTCPTx(n)
		return true
	}
	for {
		select {
		case fr := <-cl.Out:
			batch = append(batch, fr)
			if len(batch) >= s.batchSize && !flush() {
				return
			}
		case <-t.C:
			if !flush() {
				return
			}
		case <-cl.Closed:
			_ = flush()
			return
		case <-ctx.Done():
			_ = flush()
			return
		}
	}
}
