package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/metrics"
)

// startMetricsLogger logs a counter snapshot every interval for setups without Prometheus.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"socketcan_rx", snap.SocketCANRx,
					"socketcan_tx", snap.SocketCANTx,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"mqtt_published", snap.MQTT,
					"hub_clients", snap.HubClients,
					"hub_drops", snap.HubDrops,
					"hub_kicks", snap.HubKicks,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
