package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MessagesTotal counts pipeline outcomes by terminal status.
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_messages_total",
			Help: "Messages processed by the intent pipeline, by outcome status.",
		},
		[]string{"status"},
	)

	// TicketsCreated counts tickets opened upstream, by kind and origin
	// (mail or chat).
	TicketsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_tickets_created_total",
			Help: "Tickets created in the ticket system.",
		},
		[]string{"kind", "origin"},
	)

	// PollErrors counts failed mailbox polls.
	PollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_poll_errors_total",
			Help: "Mailbox polls that failed.",
		},
	)

	// DrainDuration records how long one pipeline drain takes.
	DrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_drain_duration_seconds",
			Help:    "Duration of one pipeline drain in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(MessagesTotal, TicketsCreated, PollErrors, DrainDuration)
}
