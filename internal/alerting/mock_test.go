package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/incidents"
	"github.com/bissquit/alert-garden/internal/notifications"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type logEntry struct {
	scope    domain.TelemetryScope
	level    domain.LogLevel
	loggedAt time.Time
}

type firingKey struct{ ruleID, fingerprint string }

// memRepository is an in-memory Repository with the scope semantics of the PostgreSQL one.
type memRepository struct {
	mu          sync.Mutex
	rules       []domain.AlertRule
	logs        []logEntry
	deployments []domain.Deployment
	firings     map[firingKey]*domain.AlertFiring

	listErr   error
	listCalls int
}

func newMemRepository() *memRepository {
	return &memRepository{firings: make(map[firingKey]*domain.AlertFiring)}
}

func (r *memRepository) addRule(rule domain.AlertRule) domain.AlertRule {
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule-%d", len(r.rules)+1)
	}
	if rule.OrgID == "" {
		rule.OrgID = "org-1"
	}
	rule.Enabled = true
	r.rules = append(r.rules, rule)
	return rule
}

func (r *memRepository) addErrorLogs(scope domain.TelemetryScope, n int, at time.Time) {
	for range n {
		r.logs = append(r.logs, logEntry{scope: scope, level: domain.LogLevelError, loggedAt: at})
	}
}

func (r *memRepository) addDeployment(d domain.Deployment) {
	if d.OrgID == "" {
		d.OrgID = "org-1"
	}
	r.deployments = append(r.deployments, d)
}

func (r *memRepository) firing(ruleID, fingerprint string) *domain.AlertFiring {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firings[firingKey{ruleID, fingerprint}]
}

func (r *memRepository) ListEnabledRules(context.Context) ([]domain.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	rules := make([]domain.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func (r *memRepository) CountErrorLogs(_ context.Context, scope domain.TelemetryScope, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, l := range r.logs {
		if l.level == domain.LogLevelError && inScope(scope, l.scope) && !l.loggedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memRepository) LatestDeployment(_ context.Context, scope domain.TelemetryScope) (*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Deployment
	for i := range r.deployments {
		d := &r.deployments[i]
		target := domain.TelemetryScope{OrgID: d.OrgID, ServiceID: d.ServiceID, EnvironmentID: d.EnvironmentID}
		if !inScope(scope, target) {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, ErrNoDeployment
	}
	d := *latest
	return &d, nil
}

func (r *memRepository) UpsertFiring(_ context.Context, ruleID, fingerprint string, firedAt time.Time) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := firingKey{ruleID, fingerprint}
	f, ok := r.firings[key]
	if !ok {
		r.firings[key] = &domain.AlertFiring{RuleID: ruleID, Fingerprint: fingerprint, FiredAt: firedAt}
		return nil, nil
	}
	f.FiredAt = firedAt
	return f.LastNotifiedAt, nil
}

func (r *memRepository) MarkNotified(_ context.Context, ruleID, fingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.firings[firingKey{ruleID, fingerprint}]; ok {
		f.LastNotifiedAt = &at
	}
	return nil
}

// inScope reports whether target telemetry falls under the rule scope.
func inScope(scope, target domain.TelemetryScope) bool {
	if scope.OrgID != target.OrgID {
		return false
	}
	if scope.ServiceID != nil && (target.ServiceID == nil || *target.ServiceID != *scope.ServiceID) {
		return false
	}
	if scope.EnvironmentID != nil && (target.EnvironmentID == nil || *target.EnvironmentID != *scope.EnvironmentID) {
		return false
	}
	return true
}

// fakeIncidents keeps incidents in memory and allows one active incident per fingerprint.
type fakeIncidents struct {
	incidents []*domain.Incident
	triggers  map[string][]map[string]any

	findErr    error
	triggerErr error
	// raceOnOpen makes OpenFromAlert behave as if a concurrent run inserted first.
	raceOnOpen bool
}

func newFakeIncidents() *fakeIncidents {
	return &fakeIncidents{triggers: make(map[string][]map[string]any)}
}

func (f *fakeIncidents) FindOpen(_ context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, inc := range f.incidents {
		if inc.OrgID == orgID && *inc.RuleID == ruleID && *inc.Fingerprint == fingerprint && inc.Status.IsActive() {
			return inc, nil
		}
	}
	return nil, incidents.ErrIncidentNotFound
}

func (f *fakeIncidents) OpenFromAlert(ctx context.Context, input incidents.AlertInput) (*domain.Incident, error) {
	if _, err := f.FindOpen(ctx, input.OrgID, input.RuleID, input.Fingerprint); err == nil {
		return nil, incidents.ErrOpenIncidentExists
	}

	ruleID, fingerprint := input.RuleID, input.Fingerprint
	inc := &domain.Incident{
		ID:          fmt.Sprintf("inc-%d", len(f.incidents)+1),
		OrgID:       input.OrgID,
		Title:       input.Title,
		Description: input.Description,
		Severity:    input.Severity,
		Status:      domain.IncidentStatusOpen,
		Source:      domain.IncidentSourceAlert,
		RuleID:      &ruleID,
		Fingerprint: &fingerprint,
	}
	f.incidents = append(f.incidents, inc)

	if f.raceOnOpen {
		f.raceOnOpen = false
		return nil, fmt.Errorf("create incident: %w", incidents.ErrOpenIncidentExists)
	}
	return inc, nil
}

func (f *fakeIncidents) RecordTrigger(_ context.Context, incident *domain.Incident, _ string, triggerContext map[string]any) error {
	if f.triggerErr != nil {
		return f.triggerErr
	}
	f.triggers[incident.ID] = append(f.triggers[incident.ID], triggerContext)
	return nil
}

func (f *fakeIncidents) resolve(id string) {
	for _, inc := range f.incidents {
		if inc.ID == id {
			inc.Status = domain.IncidentStatusResolved
		}
	}
}

type fakeNotifier struct {
	events []notifications.RenderedEvent
	err    error
}

func (n *fakeNotifier) Enqueue(_ context.Context, _ string, event notifications.RenderedEvent) (int, error) {
	if n.err != nil {
		return 0, n.err
	}
	n.events = append(n.events, event)
	return 1, nil
}

func (n *fakeNotifier) types() []notifications.EventType {
	types := make([]notifications.EventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

type fakeRecorder struct {
	summaries []RunSummary
	err       error
}

func (r *fakeRecorder) Record(_ context.Context, _ string, summary any) error {
	if r.err != nil {
		return r.err
	}
	r.summaries = append(r.summaries, summary.(RunSummary))
	return nil
}

type fakeLocker struct {
	err      error
	released int
}

func (l *fakeLocker) Acquire(context.Context) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}

type testEnv struct {
	repo      *memRepository
	incidents *fakeIncidents
	notifier  *fakeNotifier
	runs      *fakeRecorder
	locker    *fakeLocker
	clock     *clock
	evaluator *Evaluator
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:      newMemRepository(),
		incidents: newFakeIncidents(),
		notifier:  &fakeNotifier{},
		runs:      &fakeRecorder{},
		locker:    &fakeLocker{},
		clock:     &clock{now: testNow},
	}
	env.evaluator = NewEvaluator(env.repo, env.incidents, env.notifier, env.runs, env.locker)
	env.evaluator.now = env.clock.Now
	return env
}

func errorCountRule(name string, threshold, windowMinutes, cooldownSeconds int) domain.AlertRule {
	params, _ := json.Marshal(domain.ErrorCountParams{WindowMinutes: windowMinutes, Threshold: threshold})
	return domain.AlertRule{
		Name:            name,
		Type:            domain.RuleTypeErrorCount,
		Params:          params,
		Severity:        domain.SeverityCritical,
		CooldownSeconds: cooldownSeconds,
	}
}

func deploymentRule(name string, serviceID *string) domain.AlertRule {
	return domain.AlertRule{
		Name:      name,
		Type:      domain.RuleTypeDeploymentFailure,
		ServiceID: serviceID,
		Severity:  domain.SeverityMajor,
	}
}

func orgScope() domain.TelemetryScope {
	return domain.TelemetryScope{OrgID: "org-1"}
}

func ptr[T any](v T) *T { return &v }

var errDBDown = errors.New("db down")
