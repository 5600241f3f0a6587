package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	VerificationDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trueport_verification_decisions_total",
		Help: "Verification decisions applied, by decision.",
	}, []string{"decision"})

	InviteEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trueport_invite_events_total",
		Help: "Verifier invite transitions, by event.",
	}, []string{"event"})

	BGVerificationEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trueport_bg_verification_events_total",
		Help: "Background verification transitions, by event.",
	}, []string{"event"})

	OutboxDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trueport_outbox_deliveries_total",
		Help: "Outbox delivery attempts, by kind and result.",
	}, []string{"kind", "result"})

	LivePublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trueport_live_publish_total",
		Help: "Live notification publishes, by result.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		VerificationDecisions,
		InviteEvents,
		BGVerificationEvents,
		OutboxDeliveries,
		LivePublishes,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
