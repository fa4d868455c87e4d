package alerting

import (
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// Action is what the evaluator did for a triggered rule.
type Action string

// Actions.
const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionCooldown Action = "cooldown"
)

// TriggeredRule describes one rule whose predicate held.
type TriggeredRule struct {
	RuleID      string          `json:"ruleId"`
	RuleName    string          `json:"ruleName"`
	Type        domain.RuleType `json:"type"`
	Fingerprint string          `json:"fingerprint"`
	Action      Action          `json:"action"`
	IncidentID  string          `json:"incidentId,omitempty"`
	Context     map[string]any  `json:"context"`
}

// RuleResult is the per-rule outcome. Error is set when evaluating the rule failed.
type RuleResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes one evaluation run.
type Report struct {
	Evaluated        int             `json:"evaluated"`
	TriggeredCount   int             `json:"triggeredCount"`
	IncidentsCreated int             `json:"incidentsCreated"`
	IncidentsUpdated int             `json:"incidentsUpdated"`
	TriggeredRules   []TriggeredRule `json:"triggeredRules"`
	Results          []RuleResult    `json:"results"`
}

func newReport(rules int) *Report {
	return &Report{
		TriggeredRules: make([]TriggeredRule, 0),
		Results:        make([]RuleResult, 0, rules),
	}
}

func (r *Report) add(result RuleResult, triggered *TriggeredRule) {
	r.Evaluated++
	r.Results = append(r.Results, result)
	if triggered == nil {
		return
	}

	r.TriggeredCount++
	r.TriggeredRules = append(r.TriggeredRules, *triggered)
	switch triggered.Action {
	case ActionCreated:
		r.IncidentsCreated++
	case ActionUpdated:
		r.IncidentsUpdated++
	}
}

// RunSummary is the run record stored after each evaluation.
type RunSummary struct {
	RulesEvaluated   int `json:"rulesEvaluated"`
	TriggeredCount   int `json:"triggeredCount"`
	IncidentsCreated int `json:"incidentsCreated"`
	IncidentsUpdated int `json:"incidentsUpdated"`
}

// Summary returns the run record of the report.
func (r *Report) Summary() RunSummary {
	return RunSummary{
		RulesEvaluated:   r.Evaluated,
		TriggeredCount:   r.TriggeredCount,
		IncidentsCreated: r.IncidentsCreated,
		IncidentsUpdated: r.IncidentsUpdated,
	}
}

// shouldNotify reports whether a new incident may be opened for a fingerprint last notified at last.
func shouldNotify(last *time.Time, now time.Time, cooldown time.Duration) bool {
	return last == nil || now.Sub(*last) > cooldown
}
