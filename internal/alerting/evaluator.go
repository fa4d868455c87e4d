package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/cronrun"
	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/incidents"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
	"github.com/bissquit/alert-garden/internal/pkg/lock"
	"github.com/bissquit/alert-garden/internal/pkg/metrics"
)

// IncidentManager opens and updates incidents for firing rules.
type IncidentManager interface {
	FindOpen(ctx context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error)
	OpenFromAlert(ctx context.Context, input incidents.AlertInput) (*domain.Incident, error)
	RecordTrigger(ctx context.Context, incident *domain.Incident, ruleName string, triggerContext map[string]any) error
}

// Notifier enqueues notifications for an incident transition.
type Notifier interface {
	Enqueue(ctx context.Context, orgID string, event notifications.RenderedEvent) (int, error)
}

// Evaluator runs all enabled rules once per Run call.
type Evaluator struct {
	repo      Repository
	incidents IncidentManager
	notifier  Notifier
	runs      cronrun.Recorder
	locker    lock.Locker
	now       func() time.Time
}

// NewEvaluator creates a new evaluator. runs and locker may be nil.
func NewEvaluator(repo Repository, incidentManager IncidentManager, notifier Notifier, runs cronrun.Recorder, locker lock.Locker) *Evaluator {
	if runs == nil {
		runs = cronrun.Nop{}
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Evaluator{
		repo:      repo,
		incidents: incidentManager,
		notifier:  notifier,
		runs:      runs,
		locker:    locker,
		now:       time.Now,
	}
}

// Run evaluates every enabled rule. A failing rule is reported in Results and never stops the run;
// only failing to acquire the lock or to load rules is returned.
func (e *Evaluator) Run(ctx context.Context) (report *Report, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveCronRun(cronrun.JobEvaluateAlerts, time.Since(start).Seconds(), err)
	}()

	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := ctxlog.FromContext(ctx)
	now := e.now()

	rules, err := e.repo.ListEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}

	report = newReport(len(rules))
	for i := range rules {
		rule := &rules[i]
		result := RuleResult{RuleID: rule.ID}

		ruleCtx := ctxlog.With(ctx, "rule_id", rule.ID, "rule_type", rule.Type)
		triggered, err := e.evaluateRule(ruleCtx, rule, now)
		if err != nil {
			ctxlog.FromContext(ruleCtx).Error("rule evaluation failed", "error", err)
			result.Error = err.Error()
		} else if triggered != nil {
			result.Triggered = true
			recordTriggered(triggered)
		}

		recordRuleEvaluated(string(rule.Type), result)
		report.add(result, triggered)
	}

	logger.Info("alert rules evaluated",
		"evaluated", report.Evaluated,
		"triggered", report.TriggeredCount,
		"incidents_created", report.IncidentsCreated,
		"incidents_updated", report.IncidentsUpdated,
	)

	if err := e.runs.Record(ctx, cronrun.JobEvaluateAlerts, report.Summary()); err != nil {
		logger.Error("failed to record run", "job", cronrun.JobEvaluateAlerts, "error", err)
	}

	return report, nil
}

// evaluateRule returns nil when the predicate does not hold.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *domain.AlertRule, now time.Time) (*TriggeredRule, error) {
	outcome, err := Check(ctx, e.repo, rule, now)
	if err != nil {
		return nil, err
	}
	if !outcome.Triggered {
		return nil, nil
	}

	fingerprint := Fingerprint(rule, outcome)
	lastNotifiedAt, err := e.repo.UpsertFiring(ctx, rule.ID, fingerprint, now)
	if err != nil {
		return nil, fmt.Errorf("upsert firing: %w", err)
	}

	triggered := &TriggeredRule{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Type:        rule.Type,
		Fingerprint: fingerprint,
		Context:     outcome.Context,
	}

	incident, err := e.incidents.FindOpen(ctx, rule.OrgID, rule.ID, fingerprint)
	switch {
	case err == nil:
		return e.updateIncident(ctx, rule, incident, triggered)
	case !errors.Is(err, incidents.ErrIncidentNotFound):
		return nil, fmt.Errorf("find open incident: %w", err)
	}

	if !shouldNotify(lastNotifiedAt, now, rule.Cooldown()) {
		triggered.Action = ActionCooldown
		return triggered, nil
	}

	incident, err = e.incidents.OpenFromAlert(ctx, incidents.AlertInput{
		OrgID:         rule.OrgID,
		ServiceID:     rule.ServiceID,
		EnvironmentID: rule.EnvironmentID,
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Fingerprint:   fingerprint,
		Title:         rule.Name,
		Description:   describe(rule, outcome),
		Severity:      rule.Severity,
		Context:       outcome.Context,
	})
	if errors.Is(err, incidents.ErrOpenIncidentExists) {
		// A concurrent run opened the incident between FindOpen and the insert.
		incident, err = e.incidents.FindOpen(ctx, rule.OrgID, rule.ID, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("find concurrent incident: %w", err)
		}
		return e.updateIncident(ctx, rule, incident, triggered)
	}
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}

	triggered.Action = ActionCreated
	triggered.IncidentID = incident.ID

	if err := e.repo.MarkNotified(ctx, rule.ID, fingerprint, now); err != nil {
		ctxlog.FromContext(ctx).Error("failed to mark firing notified", "fingerprint", fingerprint, "error", err)
	}
	e.notify(ctx, notifications.EventIncidentCreated, incident)

	return triggered, nil
}

func (e *Evaluator) updateIncident(ctx context.Context, rule *domain.AlertRule, incident *domain.Incident, triggered *TriggeredRule) (*TriggeredRule, error) {
	if err := e.incidents.RecordTrigger(ctx, incident, rule.Name, triggered.Context); err != nil {
		return nil, fmt.Errorf("record trigger: %w", err)
	}

	triggered.Action = ActionUpdated
	triggered.IncidentID = incident.ID
	e.notify(ctx, notifications.EventIncidentUpdated, incident)

	return triggered, nil
}

func (e *Evaluator) notify(ctx context.Context, eventType notifications.EventType, incident *domain.Incident) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Enqueue(ctx, incident.OrgID, incidents.RenderEvent(eventType, incident)); err != nil {
		ctxlog.FromContext(ctx).Error("failed to enqueue notifications",
			"incident_id", incident.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func describe(rule *domain.AlertRule, outcome Outcome) string {
	switch p := outcome.Params.(type) {
	case domain.ErrorCountParams:
		return fmt.Sprintf("%v error logs in the last %d minutes (threshold %d)",
			outcome.Context["count"], p.WindowMinutes, p.Threshold)
	case domain.DeploymentFailureParams:
		return fmt.Sprintf("Deployment %s finished with status %v", outcome.DeploymentID, outcome.Context["status"])
	default:
		return rule.Name
	}
}
