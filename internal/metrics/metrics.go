package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kstaniek/go-canfd-server/internal/logging"
)

// Prometheus collectors
var (
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN FD frames read from the SocketCAN channel.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN FD frames written to the SocketCAN channel.",
	})
	SocketCANRxBRS = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_brs_frames_total",
		Help: "Received frames that used the data phase bit rate.",
	})
	RxPayloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "socketcan_rx_payload_bytes",
		Help:    "Payload length of received frames.",
		Buckets: []float64{0, 8, 12, 16, 20, 24, 32, 48, 64},
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total CAN FD frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total CAN FD frames sent to TCP clients.",
	})
	MQTTPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_published_frames_total",
		Help: "Total CAN FD frames published to the MQTT broker.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	LinkInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "socketcan_link_info",
		Help: "CAN link the channel is bound to (value is always 1).",
	}, []string{"if", "kind", "mode"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (short socket reads, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrHandshake      = "handshake"
	ErrSocketCANRead  = "socketcan_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrMQTTPublish    = "mqtt_publish"
)

// Handler serves /metrics and /ready.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// StartHTTP serves Handler on addr in the background.
func StartHTTP(addr string) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", logging.Err(err))
		}
	}()
	return srv
}

// Local mirrored counters for logging without scraping.
var (
	localSocketCANRx atomic.Uint64
	localSocketCANTx atomic.Uint64
	localTCPRx       atomic.Uint64
	localTCPTx       atomic.Uint64
	localMQTT        atomic.Uint64
	localHubDrop     atomic.Uint64
	localHubKick     atomic.Uint64
	localHubReject   atomic.Uint64
	localHubClients  atomic.Uint64
	localErrors      atomic.Uint64
	localMalformed   atomic.Uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SocketCANRx uint64
	SocketCANTx uint64
	TCPRx       uint64
	TCPTx       uint64
	MQTT        uint64
	HubDrops    uint64
	HubKicks    uint64
	HubRejects  uint64
	HubClients  uint64
	Errors      uint64 // sum across error labels
	Malformed   uint64
}

func Snap() Snapshot {
	return Snapshot{
		SocketCANRx: localSocketCANRx.Load(),
		SocketCANTx: localSocketCANTx.Load(),
		TCPRx:       localTCPRx.Load(),
		TCPTx:       localTCPTx.Load(),
		MQTT:        localMQTT.Load(),
		HubDrops:    localHubDrop.Load(),
		HubKicks:    localHubKick.Load(),
		HubRejects:  localHubReject.Load(),
		HubClients:  localHubClients.Load(),
		Errors:      localErrors.Load(),
		Malformed:   localMalformed.Load(),
	}
}

// ObserveSocketCANRx records one received frame of n payload bytes.
func ObserveSocketCANRx(n int, brs bool) {
	SocketCANRxFrames.Inc()
	RxPayloadBytes.Observe(float64(n))
	if brs {
		SocketCANRxBRS.Inc()
	}
	localSocketCANRx.Add(1)
}

func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	localSocketCANTx.Add(1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	localTCPRx.Add(1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	localTCPTx.Add(uint64(n))
}

func IncMQTTPublished() {
	MQTTPublished.Inc()
	localMQTT.Add(1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	localHubDrop.Add(1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	localHubKick.Add(1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	localHubReject.Add(1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	localHubClients.Store(uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	localErrors.Add(1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	localMalformed.Add(1)
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error series so dashboards see zeros before the first error.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrSocketCANRead, ErrSocketCANWrite, ErrSocketCANOver, ErrMQTTPublish,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetLinkInfo publishes the bound interface.
func SetLinkInfo(iface, kind, mode string) { LinkInfo.WithLabelValues(iface, kind, mode).Set(1) }

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not wired yet; don't flap
		return true
	}
	return fn()
}
