package main

import (
	"log/slog"

	"github.com/kstaniek/go-canfd-server/internal/hub"
)

func initHub(cfg *appConfig, l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	if cfg.hubPolicy == "kick" {
		h.Policy = hub.PolicyKick
	}
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("hub_config", "policy", h.Policy.String(), "buffer", h.OutBufSize)
	return h
}
