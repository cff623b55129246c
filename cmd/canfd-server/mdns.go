package main

import (
	"context"
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_canfd-server._tcp"

func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("canfd-server-%s", host)
}

func mdnsTXT(cfg *appConfig) []string {
	return []string{
		"if=" + cfg.canIf,
		"mode=" + cfg.mode.String(),
		"fd=1",
		"version=" + version,
		"commit=" + commit,
	}
}

// startMDNS registers the service and returns a cleanup func. The
// registration is also withdrawn when ctx ends.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	svc, err := zeroconf.Register(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsTXT(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	stop := context.AfterFunc(ctx, svc.Shutdown)
	return func() {
		if stop() {
			svc.Shutdown()
		}
	}, nil
}
