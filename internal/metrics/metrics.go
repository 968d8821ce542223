package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sdrfec/gateway/internal/logging"
)

// Prometheus counters/gauges
var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sender_frames_total",
		Help: "Total frames finalized and transmitted by the sender.",
	})
	DatagramsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sender_datagrams_total",
		Help: "Total UDP datagrams transmitted, originals plus recovery.",
	})
	DatagramsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiver_datagrams_total",
		Help: "Total UDP datagrams received by the reassembler.",
	})
	FramesDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiver_frames_drained_total",
		Help: "Total frames drained from the reassembler to the residual buffer.",
	})
	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiver_decode_failures_total",
		Help: "Total erasure decode attempts that failed to reconstruct a frame.",
	})
	ResidualOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiver_residual_overruns_total",
		Help: "Total drained payloads dropped because the residual buffer was full.",
	})
	MetadataChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiver_metadata_changes_total",
		Help: "Total times incoming block-0 metadata changed tuning.",
	})
	AvgBlocksPerFrame = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_avg_blocks_per_frame",
		Help: "10-frame moving average of blocks received per frame.",
	})
	AvgRecoveryPerFrame = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_avg_recovery_per_frame",
		Help: "10-frame moving average of recovery blocks used per frame.",
	})
	TxRingBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sender_txring_backlog",
		Help: "Number of ready-but-unconsumed slots in the sender's Tx staging ring.",
	})
	ControlClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "control_active_clients",
		Help: "Current number of connected command-channel clients.",
	})
	ControlRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_rejected_clients_total",
		Help: "Total command-channel connection attempts rejected (e.g. max-clients).",
	})
	ConfigurationRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_configuration_rejects_total",
		Help: "Total command-channel requests rejected as invalid configuration.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_datagrams_total",
		Help: "Total rejected malformed datagrams (wrong size, truncated).",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality), matching
// the §7 error kinds.
const (
	ErrTransientSocket   = "transient_socket"
	ErrMalformedDatagram = "malformed_datagram"
	ErrDecodeFailure     = "decode_failure"
	ErrBufferOverrun     = "buffer_overrun"
	ErrMetadataCRC       = "metadata_crc_mismatch"
	ErrConfigurationRej  = "configuration_reject"
	ErrFatalStartup      = "fatal_startup"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe
// at /ready on addr.
func StartHTTP(addr string) *http.Server {
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

// Local mirrored counters for cheap periodic logging without a
// Prometheus scraper configured.
var (
	localFramesSent       uint64
	localDatagramsSent    uint64
	localDatagramsRecv    uint64
	localFramesDrained    uint64
	localDecodeFailures   uint64
	localResidualOverruns uint64
	localMetadataChanges  uint64
	localErrors           uint64
	localMalformed        uint64
	localControlClients   uint64
	localControlRejects   uint64
)

// Snapshot is a cheap copy of local counters for a metrics_snapshot log
// line.
type Snapshot struct {
	FramesSent       uint64
	DatagramsSent    uint64
	DatagramsRecv    uint64
	FramesDrained    uint64
	DecodeFailures   uint64
	ResidualOverruns uint64
	MetadataChanges  uint64
	Errors           uint64
	Malformed        uint64
	ControlClients   uint64
	ControlRejects   uint64
}

// Snap returns a consistent-enough snapshot of the local atomic mirrors.
func Snap() Snapshot {
	return Snapshot{
		FramesSent:       atomic.LoadUint64(&localFramesSent),
		DatagramsSent:    atomic.LoadUint64(&localDatagramsSent),
		DatagramsRecv:    atomic.LoadUint64(&localDatagramsRecv),
		FramesDrained:    atomic.LoadUint64(&localFramesDrained),
		DecodeFailures:   atomic.LoadUint64(&localDecodeFailures),
		ResidualOverruns: atomic.LoadUint64(&localResidualOverruns),
		MetadataChanges:  atomic.LoadUint64(&localMetadataChanges),
		Errors:           atomic.LoadUint64(&localErrors),
		Malformed:        atomic.LoadUint64(&localMalformed),
		ControlClients:   atomic.LoadUint64(&localControlClients),
		ControlRejects:   atomic.LoadUint64(&localControlRejects),
	}
}

func IncFramesSent() {
	FramesSent.Inc()
	atomic.AddUint64(&localFramesSent, 1)
}

func AddDatagramsSent(n int) {
	DatagramsSent.Add(float64(n))
	atomic.AddUint64(&localDatagramsSent, uint64(n))
}

func IncDatagramsReceived() {
	DatagramsReceived.Inc()
	atomic.AddUint64(&localDatagramsRecv, 1)
}

func IncFramesDrained() {
	FramesDrained.Inc()
	atomic.AddUint64(&localFramesDrained, 1)
}

func IncDecodeFailure() {
	DecodeFailures.Inc()
	atomic.AddUint64(&localDecodeFailures, 1)
}

func IncResidualOverrun() {
	ResidualOverruns.Inc()
	atomic.AddUint64(&localResidualOverruns, 1)
}

func IncMetadataChange() {
	MetadataChanges.Inc()
	atomic.AddUint64(&localMetadataChanges, 1)
}

func SetAvgBlocks(v float64) { AvgBlocksPerFrame.Set(v) }

func SetAvgRecovery(v float64) { AvgRecoveryPerFrame.Set(v) }

func SetTxRingBacklog(n int) { TxRingBacklog.Set(float64(n)) }

func SetControlClients(n int) {
	ControlClients.Set(float64(n))
	atomic.StoreUint64(&localControlClients, uint64(n))
}

func IncControlReject() {
	ControlRejectedClients.Inc()
	atomic.AddUint64(&localControlRejects, 1)
}

func IncConfigurationReject() {
	ConfigurationRejects.Inc()
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedDatagrams.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTransientSocket, ErrMalformedDatagram, ErrDecodeFailure,
		ErrBufferOverrun, ErrMetadataCRC, ErrConfigurationRej, ErrFatalStartup,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
