package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsConfig configures the collector
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Subsystem string
	Registry  *prometheus.Registry
	Buckets   []float64
}

// MetricsCollector records intake and HTTP metrics into its own registry
type MetricsCollector struct {
	logger   zerolog.Logger
	enabled  bool
	registry *prometheus.Registry

	intakeMetrics *IntakeMetrics
	httpMetrics   *HTTPMetrics
}

// IntakeMetrics tracks session, upload and analysis activity
type IntakeMetrics struct {
	SessionsCreated   prometheus.Counter
	FilesUploaded     *prometheus.CounterVec
	BytesUploaded     prometheus.Counter
	UploadsRejected   *prometheus.CounterVec
	AnalysesCompleted prometheus.Counter
}

// HTTPMetrics tracks request latency
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig, logger zerolog.Logger) *MetricsCollector {
	if config.Namespace == "" {
		config.Namespace = "btumor"
	}
	if config.Subsystem == "" {
		config.Subsystem = "intake"
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	mc := &MetricsCollector{
		logger:   logger.With().Str("component", "metrics").Logger(),
		enabled:  config.Enabled,
		registry: registry,
	}

	if config.Enabled {
		mc.initializeMetrics(config)
	}

	return mc
}

func (mc *MetricsCollector) initializeMetrics(config MetricsConfig) {
	mc.intakeMetrics = mc.createIntakeMetrics(config)
	mc.httpMetrics = mc.createHTTPMetrics(config)

	mc.logger.Info().
		Str("namespace", config.Namespace).
		Str("subsystem", config.Subsystem).
		Msg("Metrics collector initialized")
}

func (mc *MetricsCollector) createIntakeMetrics(config MetricsConfig) *IntakeMetrics {
	return &IntakeMetrics{
		SessionsCreated: promauto.With(mc.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),

		FilesUploaded: promauto.With(mc.registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "files_uploaded_total",
			Help:      "Accepted uploads by sequence type",
		}, []string{"sequence_type"}),

		BytesUploaded: promauto.With(mc.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "uploaded_bytes_total",
			Help:      "Total bytes committed to session storage",
		}),

		UploadsRejected: promauto.With(mc.registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "uploads_rejected_total",
			Help:      "Rejected upload requests by reason",
		}, []string{"reason"}),

		AnalysesCompleted: promauto.With(mc.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "analyses_completed_total",
			Help:      "Total number of completed analyses",
		}),
	}
}

func (mc *MetricsCollector) createHTTPMetrics(config MetricsConfig) *HTTPMetrics {
	return &HTTPMetrics{
		RequestDuration: promauto.With(mc.registry).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"method", "route", "status"}),
	}
}

func (mc *MetricsCollector) SessionCreated() {
	if !mc.enabled {
		return
	}
	mc.intakeMetrics.SessionsCreated.Inc()
}

func (mc *MetricsCollector) FileUploaded(sequenceType string, size int64) {
	if !mc.enabled {
		return
	}
	mc.intakeMetrics.FilesUploaded.WithLabelValues(sequenceType).Inc()
	mc.intakeMetrics.BytesUploaded.Add(float64(size))
}

func (mc *MetricsCollector) UploadRejected(reason string) {
	if !mc.enabled {
		return
	}
	mc.intakeMetrics.UploadsRejected.WithLabelValues(reason).Inc()
}

func (mc *MetricsCollector) AnalysisCompleted() {
	if !mc.enabled {
		return
	}
	mc.intakeMetrics.AnalysesCompleted.Inc()
}

// RecordRequest observes one HTTP request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (mc *MetricsCollector) RecordRequest(method, route string, status int, duration time.Duration) {
	if !mc.enabled {
		return
	}
	mc.httpMetrics.RequestDuration.
		WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(duration.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}

// IsEnabled returns whether metrics collection is enabled
func (mc *MetricsCollector) IsEnabled() bool {
	return mc.enabled
}
