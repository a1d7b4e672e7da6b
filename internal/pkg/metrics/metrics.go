package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	donationsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donations_processed_total",
			Help: "Processed payment notifications by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	fanoutFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_fanout_failures_total",
			Help: "Failed post-commit side effects by sink.",
		},
		[]string{"sink"},
	)

	outboxDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donation_outbox_dropped_total",
		Help: "Side-effect tasks dropped because the outbox queue was full.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(donationsProcessed, fanoutFailures, outboxDropped)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels for DonationProcessed.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// DonationProcessed records one reconciliation outcome.
func DonationProcessed(provider, outcome string) {
	donationsProcessed.WithLabelValues(provider, outcome).Inc()
}

// FanoutFailed records a failed side-effect dispatch.
func FanoutFailed(sink string) {
	fanoutFailures.WithLabelValues(sink).Inc()
}

// OutboxDropped records a dropped side-effect task.
func OutboxDropped() {
	outboxDropped.Inc()
}
