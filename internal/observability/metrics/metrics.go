// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call_transcription_bot"

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Audio gate metrics
	FramesReceived  prometheus.Counter
	FramesRejected  prometheus.Counter
	VoiceFrames     prometheus.Counter
	SegmentsFlushed prometheus.Counter
	SegmentBytes    prometheus.Histogram

	// Transport metrics
	AudioEnqueued     prometheus.Counter
	AudioDropped      *prometheus.CounterVec
	EventsReceived    *prometheus.CounterVec
	ProtocolErrors    *prometheus.CounterVec
	ConnectsTotal     *prometheus.CounterVec
	ConnectFailures   *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	ConnectionsFailed prometheus.Counter

	// Transcript metrics
	FoldsTotal      prometheus.Counter
	FoldsRedundant  prometheus.Counter
	TranscriptChars prometheus.Gauge

	// Store metrics
	StoreWrites       prometheus.Counter
	StoreWriteErrors  prometheus.Counter
	StoreWriteLatency prometheus.Histogram

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received from the call layer",
		}),
		FramesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_rejected_total",
			Help:      "Total audio frames rejected as malformed",
		}),
		VoiceFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_voice_total",
			Help:      "Total audio frames classified as voice-active",
		}),
		SegmentsFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_segments_flushed_total",
			Help:      "Total voice segments flushed to the transport",
		}),
		SegmentBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_segment_bytes",
			Help:      "Size of flushed voice segments in bytes",
			Buckets:   []float64{512, 2048, 8192, 32768, 131072, 524288},
		}),

		AudioEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_audio_enqueued_total",
			Help:      "Total audio segments accepted into the send queue",
		}),
		AudioDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_audio_dropped_total",
			Help:      "Total audio segments dropped by the send queue",
		}, []string{"backend"}),
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_events_received_total",
			Help:      "Total recognition events received from the backend",
		}, []string{"backend"}),
		ProtocolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_protocol_errors_total",
			Help:      "Total malformed or non-success backend payloads discarded",
		}, []string{"backend"}),
		ConnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_connects_total",
			Help:      "Total transport connect attempts",
		}, []string{"backend"}),
		ConnectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_connect_failures_total",
			Help:      "Total failed transport connect attempts",
		}, []string{"backend"}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_reconnect_attempts_total",
			Help:      "Total automatic reconnect attempts",
		}),
		ConnectionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_connections_failed_total",
			Help:      "Total connections that exhausted their reconnect budget",
		}),

		FoldsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_folds_total",
			Help:      "Total recognition snippets folded into transcripts",
		}),
		FoldsRedundant: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_folds_redundant_total",
			Help:      "Total snippets discarded as fully redundant",
		}),
		TranscriptChars: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_length_chars",
			Help:      "Length of the most recently updated transcript",
		}),

		StoreWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Total transcript snapshot writes",
		}),
		StoreWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_errors_total",
			Help:      "Total failed transcript snapshot writes",
		}),
		StoreWriteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_latency_seconds",
			Help:      "Transcript snapshot write latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active transcription sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total transcription sessions started",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordFrame records one audio frame arriving from the call layer.
func (m *Metrics) RecordFrame(voice bool, rejected bool) {
	m.FramesReceived.Inc()
	if rejected {
		m.FramesRejected.Inc()
		return
	}
	if voice {
		m.VoiceFrames.Inc()
	}
}

// RecordSegmentFlush records one voice segment handed to the transport.
func (m *Metrics) RecordSegmentFlush(bytes int) {
	m.SegmentsFlushed.Inc()
	m.SegmentBytes.Observe(float64(bytes))
}

// RecordFold records one accumulator fold and the resulting transcript size.
func (m *Metrics) RecordFold(appended int, transcriptLen int) {
	m.FoldsTotal.Inc()
	if appended == 0 {
		m.FoldsRedundant.Inc()
	}
	m.TranscriptChars.Set(float64(transcriptLen))
}

// RecordStoreWrite records one snapshot write.
func (m *Metrics) RecordStoreWrite(err error, seconds float64) {
	m.StoreWrites.Inc()
	m.StoreWriteLatency.Observe(seconds)
	if err != nil {
		m.StoreWriteErrors.Inc()
	}
}

// RecordKafkaPublish records one Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, seconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}
