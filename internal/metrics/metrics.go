// Package metrics exposes canctl's frame counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/lion187chen/socketcan-go/v2/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read, by interface and kind.",
	}, []string{"iface", "kind"})
	TxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written, by interface.",
	}, []string{"iface"})
	BusErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketcan_bus_errors_total",
		Help: "Decoded error frames, by error class.",
	}, []string{"class"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketcan_errors_total",
		Help: "Operation failures, by subsystem.",
	}, []string{"where"})
	ReplaySkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_replay_skipped_total",
		Help: "Log records skipped during replay because they failed to parse.",
	})
)

// Frame kind label values.
const (
	KindClassic = "classic"
	KindFD      = "fd"
	KindError   = "error"
)

// Error label values.
const (
	ErrRead    = "read"
	ErrWrite   = "write"
	ErrNetlink = "netlink"
	ErrParse   = "parse"
)

// Local mirrors, readable without scraping.
var (
	localRx        uint64
	localTx        uint64
	localBusErrors uint64
	localErrors    uint64
	localSkipped   uint64
)

// Snapshot is a copy of the local counters.
type Snapshot struct {
	Rx        uint64
	Tx        uint64
	BusErrors uint64
	Errors    uint64
	Skipped   uint64
}

func Snap() Snapshot {
	return Snapshot{
		Rx:        atomic.LoadUint64(&localRx),
		Tx:        atomic.LoadUint64(&localTx),
		BusErrors: atomic.LoadUint64(&localBusErrors),
		Errors:    atomic.LoadUint64(&localErrors),
		Skipped:   atomic.LoadUint64(&localSkipped),
	}
}

func IncRx(iface, kind string) {
	RxFrames.WithLabelValues(iface, kind).Inc()
	atomic.AddUint64(&localRx, 1)
}

func IncTx(iface string) {
	TxFrames.WithLabelValues(iface).Inc()
	atomic.AddUint64(&localTx, 1)
}

// IncBusError counts a decoded error frame under its class name.
func IncBusError(class string) {
	BusErrors.WithLabelValues(class).Inc()
	atomic.AddUint64(&localBusErrors, 1)
}

func IncError(where string) {
	Errors.WithLabelValues(where).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncReplaySkipped() {
	ReplaySkipped.Inc()
	atomic.AddUint64(&localSkipped, 1)
}

// StartHTTP serves /metrics on addr in the background.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
