package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/cnl"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/mqttsink"
	"github.com/kstaniek/go-canfd-server/internal/server"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("canfd-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	var mirror transport.FrameSink
	if cfg.mqttBroker != "" {
		sink, err := mqttsink.New(ctx, mqttsink.Config{
			Broker:   cfg.mqttBroker,
			ClientID: cfg.mqttClientID,
			Topic:    cfg.mqttTopic,
		})
		if err != nil {
			l.Error("mqtt_init_error", logging.Err(err))
			return
		}
		defer sink.Close()
		mirror = sink
		l.Info("mqtt_enabled", "broker", cfg.mqttBroker, "topic", cfg.mqttTopic)
	}

	send, cleanup, berr := initBackend(ctx, cfg, h, mirror, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", logging.Err(berr))
		return
	}

	opts := []server.ServerOption{
		server.WithListenAddr(cfg.listenAddr),
		server.WithHub(h),
		server.WithCodec(&cnl.Codec{}),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
	}
	if send != nil {
		opts = append(opts, server.WithSend(send))
	}
	srv := server.NewServer(opts...)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", logging.Err(err))
			cancel()
		}
	}()

	if cfg.mdnsEnable {
		go func() {
			select {
			case <-srv.Ready():
			case <-ctx.Done():
				return
			}
			port := listenPort(srv.Addr())
			cleanupMDNS, err := startMDNS(ctx, cfg, port)
			if err != nil {
				l.Warn("mdns_start_failed", logging.Err(err))
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
			<-ctx.Done()
			cleanupMDNS()
		}()
	}

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
	}
	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Warn("tcp_shutdown_error", logging.Err(err))
	}
	cleanup()
	wg.Wait()
}

// listenPort extracts the port from a bound host:port address; 0 if absent.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
