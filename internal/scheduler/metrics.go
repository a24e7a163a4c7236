package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// TriggersArmed counts runner tasks armed by kind
	TriggersArmed *prometheus.CounterVec
	// TriggersCancelled counts runner tasks cancelled before firing
	TriggersCancelled *prometheus.CounterVec
	// TriggersFired counts fired triggers by kind and whether they were snoozed
	TriggersFired *prometheus.CounterVec
	// StaleFires counts fired triggers that no longer matched the armed record
	StaleFires prometheus.Counter
	// Snoozes counts snooze requests by kind
	Snoozes *prometheus.CounterVec
	// DormantSources counts reschedules that found no future occurrence
	DormantSources prometheus.Counter
	// StorageRetries counts retried storage operations
	StorageRetries prometheus.Counter
}

// NewMetrics registers the scheduler metrics with reg. A nil reg gets a
// private registry, which keeps tests independent of the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		TriggersArmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_triggers_armed_total",
			Help: "Total triggers armed by kind",
		}, []string{"kind"}),
		TriggersCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_triggers_cancelled_total",
			Help: "Total armed triggers cancelled by kind",
		}, []string{"kind"}),
		TriggersFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_triggers_fired_total",
			Help: "Total triggers fired by kind and snooze flag",
		}, []string{"kind", "snoozed"}),
		StaleFires: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_triggers_stale_fires_total",
			Help: "Fired triggers discarded because they were superseded",
		}),
		Snoozes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_snoozes_total",
			Help: "Total snooze requests by kind",
		}, []string{"kind"}),
		DormantSources: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_sources_dormant_total",
			Help: "Reschedules that left a source without a future occurrence",
		}),
		StorageRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_storage_retries_total",
			Help: "Storage operations retried after a transient failure",
		}),
	}
}
