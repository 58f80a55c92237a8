package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/obby/dirwatch/internal/recorder"
	"github.com/obby/dirwatch/internal/watcher"
)

// Metrics holds the counters of one watch session on a private registry
type Metrics struct {
	registry *prometheus.Registry

	changesRecorded *prometheus.CounterVec
	suppressed      *prometheus.CounterVec
	sinkErrors      *prometheus.CounterVec
	watchedDirs     prometheus.Gauge
}

// New creates the session metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		changesRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirwatch_changes_recorded_total",
				Help: "Change events written to the change log",
			},
			[]string{"kind"},
		),
		suppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirwatch_notifications_suppressed_total",
				Help: "Raw notifications dropped before recording",
			},
			[]string{"reason"},
		),
		sinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirwatch_sink_errors_total",
				Help: "Failed writes to a recorder sink",
			},
			[]string{"sink"},
		),
		watchedDirs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dirwatch_watched_directories",
				Help: "Directories currently under watch",
			},
		),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ChangeRecorded counts an event that reached the recorder
func (m *Metrics) ChangeRecorded(kind watcher.Kind) {
	m.changesRecorded.WithLabelValues(kind.String()).Inc()
}

// NotificationSuppressed implements watcher.Observer
func (m *Metrics) NotificationSuppressed(reason string) {
	m.suppressed.WithLabelValues(reason).Inc()
}

// WatchedDirectories implements watcher.Observer
func (m *Metrics) WatchedDirectories(n int) {
	m.watchedDirs.Set(float64(n))
}

// SinkFailed counts a recorder sink failure
func (m *Metrics) SinkFailed(err *recorder.RecordSinkError) {
	m.sinkErrors.WithLabelValues(err.Sink).Inc()
}

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// CountingSink wraps a watcher.Sink and counts what passes through it
type CountingSink struct {
	next    watcher.Sink
	metrics *Metrics
}

// Wrap returns a sink that counts events before forwarding them
func (m *Metrics) Wrap(next watcher.Sink) *CountingSink {
	return &CountingSink{next: next, metrics: m}
}

// Record implements watcher.Sink
func (s *CountingSink) Record(ev watcher.ChangeEvent) {
	s.metrics.ChangeRecorded(ev.Kind)
	s.next.Record(ev)
}
