package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Envelope delivery metrics
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_envelopes_total",
			Help: "Total number of envelopes handed to the transport",
		},
		[]string{"category", "status"},
	)

	EnvelopeBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_envelope_bytes_total",
			Help: "Total bytes of serialized envelopes delivered to the native layer",
		},
	)

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_beacon_encode_duration_seconds",
			Help:    "Duration of envelope serialization in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HardCrashesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_hard_crashes_total",
			Help: "Total number of envelopes flagged as hard crashes",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_beacon_queue_depth",
			Help: "Current depth of the delivery queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_beacon_queue_capacity",
			Help: "Maximum capacity of the delivery queue",
		},
	)

	// Outcome accounting metrics
	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_outcomes_recorded_total",
			Help: "Total quantity of discarded events recorded",
		},
		[]string{"reason", "category"},
	)

	OutcomesRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_outcomes_restored_total",
			Help: "Total number of outcome snapshots restored after a construction fault",
		},
	)

	ClientReportsAttached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_client_reports_attached_total",
			Help: "Total number of client reports attached to outgoing envelopes",
		},
	)

	// Native bridge metrics
	NativeInitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_native_init_failures_total",
			Help: "Total number of failed native layer initializations",
		},
	)

	// Linked error metrics
	LinkedErrorChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_beacon_linked_error_chain_length",
			Help:    "Number of exceptions produced per linked-error walk",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)

	// Relay metrics
	RelayPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_beacon_relay_publish_total",
			Help: "Total number of envelopes published by the relay",
		},
		[]string{"kind", "status"},
	)

	RelayPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_beacon_relay_publish_duration_seconds",
			Help:    "Duration of relay publish operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
