package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics counts the chargeable and reconciliation activity of the service.
// Counters live on their own registry so the exposition handler serves
// exactly what this process registers.
type Metrics struct {
	Registry *prometheus.Registry

	GenerationsTotal    *prometheus.CounterVec
	CampaignsTotal      prometheus.Counter
	SlotFailuresTotal   *prometheus.CounterVec
	CreditsChargedTotal prometheus.Counter
	CreditsGrantedTotal prometheus.Counter
	PaymentsTotal       *prometheus.CounterVec
	WebhookEventsTotal  *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		GenerationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digiforge_generations_total",
			Help: "Completed AI generations by kind.",
		}, []string{"kind"}),
		CampaignsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "digiforge_campaigns_assembled_total",
			Help: "Assembled campaign artifacts.",
		}),
		SlotFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digiforge_campaign_slot_failures_total",
			Help: "Campaign slot generations that failed JSON parsing.",
		}, []string{"slot"}),
		CreditsChargedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "digiforge_credits_charged_total",
			Help: "Credits charged against workspace balances.",
		}),
		CreditsGrantedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "digiforge_credits_granted_total",
			Help: "Credits granted by payment reconciliation.",
		}),
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digiforge_payments_reconciled_total",
			Help: "Payment transactions reconciled by provider.",
		}, []string{"provider"}),
		WebhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digiforge_webhook_events_total",
			Help: "Inbound payment webhook events by outcome.",
		}, []string{"outcome"}),
		RateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digiforge_rate_limited_total",
			Help: "Requests denied by the rate and abuse guard.",
		}, []string{"action"}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
