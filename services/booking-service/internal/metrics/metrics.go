// Package metrics exposes the booking service counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agendei"

// Booking holds every collector the service records into. A nil *Booking is valid and
// records nothing.
type Booking struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	txRetries    prometheus.Counter
	sweepRuns    *prometheus.CounterVec
	sweepHandled *prometheus.CounterVec
	slotsServed  prometheus.Histogram
	outboxSent   *prometheus.CounterVec
	syncEvents   *prometheus.CounterVec
}

func New() *Booking {
	registry := prometheus.NewRegistry()
	m := &Booking{registry: registry}

	m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "operations_total",
		Help:      "Engine operations by name and result code",
	}, []string{"operation", "result"})

	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "operation_duration_seconds",
		Help:      "Engine operation latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "status_transitions_total",
		Help:      "Appointment status transitions by target status",
	}, []string{"status"})

	m.txRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "tx_retries_total",
		Help:      "Units of work rerun after a serialization failure or deadlock",
	})

	m.sweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Expiry sweep runs by outcome",
	}, []string{"outcome"})

	m.sweepHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "appointments_total",
		Help:      "Appointments visited by the expiry sweep by outcome",
	}, []string{"outcome"})

	m.slotsServed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "booking",
		Name:      "slots_returned",
		Help:      "Number of free slots returned per availability query",
		Buckets:   prometheus.LinearBuckets(0, 4, 10),
	})

	m.outboxSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events by publish outcome",
	}, []string{"outcome"})

	m.syncEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "sync_events_total",
		Help:      "Catalog feed events by type and outcome",
	}, []string{"type", "outcome"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations,
		m.latency,
		m.transitions,
		m.txRetries,
		m.sweepRuns,
		m.sweepHandled,
		m.slotsServed,
		m.outboxSent,
		m.syncEvents,
	)
	return m
}

func (m *Booking) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Booking) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Operation records one engine call. result is "ok" or the domain error code.
func (m *Booking) Operation(name, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, result).Inc()
	m.latency.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Booking) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Booking) TxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

func (m *Booking) SweepRun(outcome string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
}

func (m *Booking) SweepHandled(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweepHandled.WithLabelValues(outcome).Add(float64(n))
}

func (m *Booking) SlotsServed(n int) {
	if m == nil {
		return
	}
	m.slotsServed.Observe(float64(n))
}

func (m *Booking) OutboxEvents(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxSent.WithLabelValues(outcome).Add(float64(n))
}

func (m *Booking) SyncEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(eventType, outcome).Inc()
}
