package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sketchduel"

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics holds every collector the client exports.
type Metrics struct {
	ConnectionStatus  *prometheus.GaugeVec
	ReconnectAttempts prometheus.Counter
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec

	RequestDuration   *prometheus.HistogramVec
	RequestRetries    *prometheus.CounterVec
	BreakerState      prometheus.Gauge
	BreakerRejections prometheus.Counter

	BatchesFlushed    prometheus.Counter
	BatchSize         prometheus.Histogram
	CompressedFrames  prometheus.Counter
	CompressionSaved  prometheus.Counter
	QueueDepth        prometheus.Gauge
	QueueRejections   prometheus.Counter
	PoolEntries       prometheus.Gauge
	PoolEvictions     prometheus.Counter

	Errors             *prometheus.CounterVec
	ThrottledErrors    *prometheus.CounterVec
	RecoveryOutcomes   *prometheus.CounterVec
	InvalidTransitions prometheus.Counter

	gatherer prometheus.Gatherer
}

var statuses = []string{"disconnected", "connecting", "connected", "reconnecting", "error"}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests and multiple sessions in one process from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	gatherer, _ := reg.(prometheus.Gatherer)

	return &Metrics{
		gatherer: gatherer,

		ConnectionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "status",
			Help:      "1 for the current connection status, 0 otherwise.",
		}, []string{"status"}),
		ReconnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts started.",
		}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_sent_total",
			Help:      "Envelopes written to the transport by type.",
		}, []string{"type"}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_received_total",
			Help:      "Envelopes received from the transport by type.",
		}, []string{"type"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Resilient request duration including retries.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"request", "outcome"}),
		RequestRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "retries_total",
			Help:      "Retry attempts after a failed request.",
		}, []string{"request"}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "breaker_rejections_total",
			Help:      "Requests rejected by an open circuit breaker.",
		}),

		BatchesFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "batches_flushed_total",
			Help:      "Batches flushed to the transport.",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "batch_size",
			Help:      "Envelopes per flushed batch.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		CompressedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "compressed_total",
			Help:      "Envelopes sent compressed.",
		}),
		CompressionSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "compression_saved_bytes_total",
			Help:      "Bytes saved by compression.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "queue_depth",
			Help:      "Requests waiting in the request queue.",
		}),
		QueueRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "queue_rejections_total",
			Help:      "Requests rejected because the queue was full or closed.",
		}),
		PoolEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "pool_entries",
			Help:      "Open auxiliary connections.",
		}),
		PoolEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "pool_evictions_total",
			Help:      "Auxiliary connections closed by LRU eviction or idle pruning.",
		}),

		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "total",
			Help:      "Classified errors by kind.",
		}, []string{"kind"}),
		ThrottledErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "throttled_total",
			Help:      "Errors whose callbacks were suppressed by the throttle.",
		}, []string{"kind"}),
		RecoveryOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "outcomes_total",
			Help:      "Recovery results by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		InvalidTransitions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "invalid_transitions_total",
			Help:      "Authoritative updates rejected as inconsistent.",
		}),
	}
}

// Gatherer returns the registry the collectors were registered on, or nil
// if the Registerer passed to New cannot be gathered.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// SetStatus marks status as the current connection status.
func (m *Metrics) SetStatus(status string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.ConnectionStatus.WithLabelValues(s).Set(v)
	}
}
