// Package observability provides structured logging and Prometheus metrics
// for the analysis pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var config zap.Config

	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return config.Build()
}

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	LinesParsed     prometheus.Counter
	DetectionsTotal *prometheus.CounterVec
	IncidentsTotal  *prometheus.CounterVec

	IOCRefreshTotal *prometheus.CounterVec
	IOCSetSize      prometheus.Gauge

	BlocksTotal     prometheus.Counter
	AlertsTotal     prometheus.Counter
	ReportsTotal    prometheus.Counter
	DedupSuppressed prometheus.Counter

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline instruments on reg. Pass a fresh
// registry per process (or per test) so registration never collides.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	namespace := "logwarden"
	factory := promauto.With(reg)

	return &Metrics{
		LinesParsed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_parsed_total",
				Help:      "Total log lines parsed",
			},
		),
		DetectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Detections by rule and severity",
			},
			[]string{"rule", "severity"},
		),
		IncidentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incidents_total",
				Help:      "Correlated incidents by type",
			},
			[]string{"type"},
		),
		IOCRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ioc_refresh_total",
				Help:      "Reputation feed refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		IOCSetSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ioc_set_size",
				Help:      "Addresses currently in the reputation set",
			},
		),
		BlocksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_total",
				Help:      "Addresses blocked",
			},
		),
		AlertsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alert notifications sent",
			},
		),
		ReportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Incident reports written",
			},
		),
		DedupSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_suppressed_total",
				Help:      "Detections suppressed by the response dedup table",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency by route",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"route"},
		),
	}
}
