// Package telemetry exposes watchdog counters and gauges to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "countersmon"

	ResultSuccess = "success"
	ResultFailure = "failure"

	ErrServe = apperrors.ErrorCode("telemetry_serve_failed")

	shutdownTimeout = 5 * time.Second
)

// Metrics holds the watchdog's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	threadCount *prometheus.GaugeVec
	threshold   prometheus.Gauge
	samples     prometheus.Counter
	malformed   prometheus.Counter
	breaches    prometheus.Counter
	truncations prometheus.Counter
	captures    *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	locked      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		threadCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threadpool_thread_count",
			Help:      "Most recent thread pool thread count sample.",
		}, []string{"counter"}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold",
			Help:      "Configured thread count threshold.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Thread count samples processed.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Relevant counter lines skipped because the value was not numeric.",
		}),
		breaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaches_total",
			Help:      "Samples at or above the threshold.",
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_truncations_total",
			Help:      "Times the counter stream file was truncated.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Memory dump captures by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Memory dump uploads by result.",
		}, []string{"result"}),
		locked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dump_locked",
			Help:      "1 once the dump lock is held for this run.",
		}),
	}

	m.registry.MustRegister(
		m.threadCount, m.threshold, m.samples, m.malformed, m.breaches,
		m.truncations, m.captures, m.uploads, m.locked,
	)

	return m
}

// Registry exposes the underlying registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SetThreshold(v int) {
	if m == nil {
		return
	}
	m.threshold.Set(float64(v))
}

func (m *Metrics) ObserveSample(counter string, value float64, breached bool) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.threadCount.WithLabelValues(counter).Set(value)
	if breached {
		m.breaches.Inc()
	}
}

func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// ObserveTruncation satisfies sizeguard.Observer.
func (m *Metrics) ObserveTruncation(int64) {
	if m == nil {
		return
	}
	m.truncations.Inc()
}

func (m *Metrics) ObserveLocked() {
	if m == nil {
		return
	}
	m.locked.Set(1)
}

func (m *Metrics) ObserveCapture(err error) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveUpload(err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return apperrors.New().Wrap(ErrServe, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return apperrors.New().Wrap(ErrServe, err)
		}
		return nil
	}
}
