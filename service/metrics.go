package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the orchestration work the service performs. Registered on
// the default registry and served at /metrics.
type Metrics struct {
	EventsReceived    prometheus.Counter
	FlowsMatched      prometheus.Counter
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	CasesCreated      prometheus.Counter
	CaseTransitions   prometheus.Counter
	AutomationBatches *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics registers the service metrics on the given registerer. Pass nil
// to use the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchepy_events_received_total",
			Help: "Events accepted for flow matching.",
		}),
		FlowsMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchepy_flows_matched_total",
			Help: "Flow matches across all received events.",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchepy_executions_total",
			Help: "Flow executions by final status.",
		}, []string{"status"}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchepy_execution_duration_seconds",
			Help:    "Wall-clock duration of flow executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		CasesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchepy_cases_created_total",
			Help: "Cases created.",
		}),
		CaseTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchepy_case_transitions_total",
			Help: "Case phase transitions, manual and automated.",
		}),
		AutomationBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchepy_automation_batches_total",
			Help: "Phase automation batch runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchepy_webhook_deliveries_total",
			Help: "Case webhook delivery outcomes.",
		}, []string{"outcome"}),
	}
}
