package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	BookingsTotal       *prometheus.CounterVec
	AvailabilityChecks  *prometheus.CounterVec
	ScheduleCache       *prometheus.CounterVec
	FinderSoftFailures  prometheus.Counter
	BedAssignmentsTotal *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by kind (appointment, examination) and outcome.",
		}, []string{"kind", "outcome"}),
		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "availability_checks_total",
			Help:      "Doctor availability verdicts.",
		}, []string{"available"}),
		ScheduleCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "schedule_cache_total",
			Help:      "Doctor schedule cache lookups by result.",
		}, []string{"result"}),
		FinderSoftFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "available_doctors_soft_failures_total",
			Help:      "Available-doctor searches that returned an empty list after an error.",
		}),
		BedAssignmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ward",
			Name:      "bed_assignments_total",
			Help:      "Bed assignment attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Booking(kind, outcome string) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) AvailabilityCheck(available bool) {
	if m == nil {
		return
	}
	v := "false"
	if available {
		v = "true"
	}
	m.AvailabilityChecks.WithLabelValues(v).Inc()
}

func (m *Metrics) ScheduleCacheResult(result string) {
	if m == nil {
		return
	}
	m.ScheduleCache.WithLabelValues(result).Inc()
}

func (m *Metrics) FinderSoftFailure() {
	if m == nil {
		return
	}
	m.FinderSoftFailures.Inc()
}

func (m *Metrics) BedAssignment(outcome string) {
	if m == nil {
		return
	}
	m.BedAssignmentsTotal.WithLabelValues(outcome).Inc()
}
