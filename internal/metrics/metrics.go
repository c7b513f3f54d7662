package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservations"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	upserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_total",
			Help:      "Reservation upserts by outcome (created, updated, slot_taken, invalid_time, error).",
		},
		[]string{"outcome"},
	)

	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_ins_total",
			Help:      "Check-in attempts by outcome.",
		},
		[]string{"outcome"},
	)

	pushesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Staff push notifications by outcome (sent, expired, failed, dropped).",
		},
		[]string{"outcome"},
	)
)

// Register registers the collectors with the default registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, upserts, checkIns, pushesSent)
	})
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, method, status string, seconds float64) {
	httpRequests.WithLabelValues(route, method, status).Inc()
	httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// IncUpsert counts a reservation upsert outcome.
func IncUpsert(outcome string) {
	upserts.WithLabelValues(outcome).Inc()
}

// IncCheckIn counts a check-in outcome.
func IncCheckIn(outcome string) {
	checkIns.WithLabelValues(outcome).Inc()
}

// IncPush counts a push notification outcome.
func IncPush(outcome string) {
	pushesSent.WithLabelValues(outcome).Inc()
}
