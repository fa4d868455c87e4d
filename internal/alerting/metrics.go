package alerting

import (
	"github.com/bissquit/alert-garden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rulesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "alerting",
			Name:      "rules_evaluated_total",
			Help:      "Total rule evaluations by rule type and outcome",
		},
		[]string{"type", "outcome"},
	)

	rulesTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "alerting",
			Name:      "rules_triggered_total",
			Help:      "Total rule evaluations whose predicate held",
		},
		[]string{"type"},
	)

	incidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "alerting",
			Name:      "incidents_total",
			Help:      "Triggered rules by resulting action",
		},
		[]string{"action"},
	)
)

func recordRuleEvaluated(ruleType string, result RuleResult) {
	outcome := "ok"
	switch {
	case result.Error != "":
		outcome = "error"
	case result.Triggered:
		outcome = "triggered"
	}
	rulesEvaluated.WithLabelValues(ruleType, outcome).Inc()
}

func recordTriggered(t *TriggeredRule) {
	rulesTriggered.WithLabelValues(string(t.Type)).Inc()
	incidentsTotal.WithLabelValues(string(t.Action)).Inc()
}
