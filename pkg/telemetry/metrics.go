package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render outcome labels.
const (
	StatusSuccess       = "success"
	StatusBuildError    = "build_error"
	StatusInvalidHandle = "invalid_handle"
	StatusConversion    = "conversion_error"
)

// Metrics provides Prometheus metrics for builder instances and renders.
type Metrics struct {
	config MetricsConfig

	buildersCreated  prometheus.Counter
	buildersReleased prometheus.Counter
	buildersLive     prometheus.Gauge

	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec

	invalidHandles prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled every recording method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builders_created_total",
			Help:      "Total number of builder instances created",
		}),
		buildersReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builders_released_total",
			Help:      "Total number of builder instances released",
		}),
		buildersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "builders_live",
			Help:      "Current number of live builder instances",
		}),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Total number of render calls",
			},
			[]string{"operation", "status"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Duration of render calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		invalidHandles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_handles_total",
			Help:      "Total number of lookups with an invalid handle",
		}),
	}

	registry.MustRegister(
		m.buildersCreated,
		m.buildersReleased,
		m.buildersLive,
		m.renders,
		m.renderDuration,
		m.invalidHandles,
	)

	return m, nil
}

// RecordBuilderCreated counts a new builder instance.
func (m *Metrics) RecordBuilderCreated() {
	if m.buildersCreated == nil {
		return
	}
	m.buildersCreated.Inc()
	m.buildersLive.Inc()
}

// RecordBuilderReleased counts a released builder instance.
func (m *Metrics) RecordBuilderReleased() {
	if m.buildersReleased == nil {
		return
	}
	m.buildersReleased.Inc()
	m.buildersLive.Dec()
}

// RecordRender records one render call with its outcome and duration.
func (m *Metrics) RecordRender(operation, status string, duration time.Duration) {
	if m.renders == nil {
		return
	}
	m.renders.WithLabelValues(operation, status).Inc()
	m.renderDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordInvalidHandle counts a lookup that failed handle resolution.
func (m *Metrics) RecordInvalidHandle() {
	if m.invalidHandles == nil {
		return
	}
	m.invalidHandles.Inc()
}

// Registry returns the Prometheus registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on addr until ctx is done. It returns
// immediately; serve errors are logged.
func (m *Metrics) StartMetricsServer(ctx context.Context, addr string, logger *Logger) error {
	if m.registry == nil || addr == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("serving metrics on %s%s", addr, path)
	return nil
}
