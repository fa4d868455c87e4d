package alerting

import (
	"fmt"
	"strings"

	"github.com/bissquit/alert-garden/internal/domain"
)

const allScope = "all"

// Fingerprint identifies one firing condition of a rule. It is stable across evaluations
// of the same condition, so repeated firings deduplicate against the same incident.
func Fingerprint(rule *domain.AlertRule, outcome Outcome) string {
	parts := []string{string(rule.Type), scopePart(rule.ServiceID), scopePart(rule.EnvironmentID)}

	switch p := outcome.Params.(type) {
	case domain.ErrorCountParams:
		parts = append(parts, fmt.Sprint(p.WindowMinutes), fmt.Sprint(p.Threshold))
	case domain.DeploymentFailureParams:
		parts = append(parts, outcome.DeploymentID)
	}

	return strings.Join(parts, ":")
}

func scopePart(id *string) string {
	if id == nil || *id == "" {
		return allScope
	}
	return *id
}
