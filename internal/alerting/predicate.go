package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// Outcome is the result of evaluating the predicate of one rule.
type Outcome struct {
	Triggered    bool
	Params       domain.RuleParams
	DeploymentID string
	Context      map[string]any
}

// Check evaluates the predicate of rule at now.
func Check(ctx context.Context, repo Repository, rule *domain.AlertRule, now time.Time) (Outcome, error) {
	params, err := rule.DecodeParams()
	if err != nil {
		return Outcome{}, err
	}

	switch p := params.(type) {
	case domain.ErrorCountParams:
		return checkErrorCount(ctx, repo, rule, p, now)
	case domain.DeploymentFailureParams:
		return checkDeploymentFailure(ctx, repo, rule, p)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownRuleType, rule.Type)
	}
}

func checkErrorCount(ctx context.Context, repo Repository, rule *domain.AlertRule, p domain.ErrorCountParams, now time.Time) (Outcome, error) {
	count, err := repo.CountErrorLogs(ctx, rule.Scope(), now.Add(-p.Window()))
	if err != nil {
		return Outcome{}, fmt.Errorf("count error logs: %w", err)
	}

	return Outcome{
		Triggered: count >= p.Threshold,
		Params:    p,
		Context: map[string]any{
			"count":         count,
			"threshold":     p.Threshold,
			"windowMinutes": p.WindowMinutes,
		},
	}, nil
}

func checkDeploymentFailure(ctx context.Context, repo Repository, rule *domain.AlertRule, p domain.DeploymentFailureParams) (Outcome, error) {
	deployment, err := repo.LatestDeployment(ctx, rule.Scope())
	if errors.Is(err, ErrNoDeployment) {
		return Outcome{Params: p}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("latest deployment: %w", err)
	}

	return Outcome{
		Triggered:    deployment.Status.IsFailed(),
		Params:       p,
		DeploymentID: deployment.ID,
		Context: map[string]any{
			"deploymentId": deployment.ID,
			"status":       string(deployment.Status),
		},
	}, nil
}
