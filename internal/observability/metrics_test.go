package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_Registered(t *testing.T) {
	MessagesTotal.WithLabelValues("processed").Inc()
	TicketsCreated.WithLabelValues("incident", "mail").Inc()
	PollErrors.Inc()
	DrainDuration.Observe(0.2)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"intake_messages_total":         false,
		"intake_tickets_created_total":  false,
		"intake_poll_errors_total":      false,
		"intake_drain_duration_seconds": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("collector %s not registered", name)
		}
	}
}
