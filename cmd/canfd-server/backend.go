package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/canlink"
	"github.com/kstaniek/go-canfd-server/internal/hub"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/socketcan"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

const (
	txQueueSize  = 1024
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)

// Test hooks.
var (
	openChannel = func(iface string, ids []uint32, mode socketcan.Mode) (socketcan.Dev, error) {
		ch, err := socketcan.Open(iface, ids, mode)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	queryLink = canlink.Query
	sleepFn   = time.Sleep
)

// logLinkInfo reports the controller configuration. Failure only warns: the
// channel open that follows is authoritative.
func logLinkInfo(cfg *appConfig, l *slog.Logger) {
	info, err := queryLink(cfg.canIf)
	if err != nil {
		l.Warn("canlink_query_failed", "if", cfg.canIf, logging.Err(err))
		return
	}
	metrics.SetLinkInfo(cfg.canIf, info.Kind, cfg.mode.String())
	l.Info("canlink_info",
		"if", info.Name,
		"kind", info.Kind,
		"mtu", info.MTU,
		"up", info.Up,
		"fd", info.FDCapable(),
		"listen_only", info.ListenOnly(),
		"bitrate", info.Bitrate,
		"data_bitrate", info.DataBitrate,
		"state", info.State.String(),
	)
	if !info.Up {
		l.Warn("canlink_down", "if", info.Name)
	}
}

// initBackend opens the channel, starts the RX loop when the mode reads and
// returns the TX sink (nil for read-only) with a cleanup func. Received frames
// go to the hub and, when non-nil, to mirror.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, mirror transport.FrameSink, l *slog.Logger, wg *sync.WaitGroup) (transport.FrameSink, func(), error) {
	logLinkInfo(cfg, l)
	dev, err := openChannel(cfg.canIf, cfg.canIDs, cfg.mode)
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf, "mode", cfg.mode.String(), "ids", len(cfg.canIDs), "brs", cfg.brs)

	bctx, cancel := context.WithCancel(ctx)
	rxDone := make(chan struct{})
	if cfg.mode.CanRead() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(rxDone)
			runRX(bctx, dev, h, mirror, l)
		}()
	} else {
		close(rxDone)
	}

	var tw *socketcan.TXWriter
	var sink transport.FrameSink
	if cfg.mode.CanWrite() {
		tw = socketcan.NewTXWriter(bctx, dev, txQueueSize, cfg.brs)
		sink = tw
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			cancel()
			<-rxDone
			if tw != nil {
				tw.Close()
			}
			_ = dev.Close()
		})
	}
	return sink, cleanup, nil
}

// runRX polls dev until ctx ends. Read timeouts are the idle case and retry at
// once; other errors back off exponentially.
func runRX(ctx context.Context, dev socketcan.Dev, h *hub.Hub, mirror transport.FrameSink, l *slog.Logger) {
	defer l.Info("socketcan_rx_end")
	backoff := rxBackoffMin
	for ctx.Err() == nil {
		fr, err := dev.Read()
		if err != nil {
			if errors.Is(err, socketcan.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, socketcan.ErrShortFrame) {
				metrics.IncMalformed()
			}
			metrics.IncError(metrics.ErrSocketCANRead)
			l.Warn("socketcan_read_error", logging.Err(err), "backoff", backoff)
			sleepFn(backoff)
			backoff = min(backoff*2, rxBackoffMax)
			continue
		}
		backoff = rxBackoffMin
		metrics.ObserveSocketCANRx(int(fr.Len), fr.Flags&can.FlagBRS != 0)
		h.Broadcast(fr)
		if mirror != nil {
			_ = mirror.SendFrame(fr)
		}
	}
}
