// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hanguk"

// Registry is private to the service so tests can build routers repeatedly
// without duplicate registration panics on the global registry.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	HTTPInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "In-flight HTTP requests.",
	})

	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latencies in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	BookingsAdmitted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_admitted_total",
		Help:      "Bookings accepted as pending.",
	})

	BookingsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_rejected_total",
		Help:      "Booking submissions rejected, by reason.",
	}, []string{"reason"})

	BookingTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking status changes.",
	}, []string{"from", "to"})

	AuditEntries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_entries_total",
		Help:      "Audit entries by outcome: written, failed or dropped.",
	}, []string{"result"})

	LoginAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Staff login attempts by result.",
	}, []string{"result"})

	RateLimited = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by a rate-limit policy.",
	}, []string{"policy"})

	JanitorPurged = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "janitor_purged_total",
		Help:      "Records removed by the retention janitor.",
	}, []string{"collection"})

	GuestEmails = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guest_emails_total",
		Help:      "Guest notification emails by kind and result.",
	}, []string{"kind", "result"})
)

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
