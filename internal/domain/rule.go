package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// RuleType identifies the predicate an alert rule evaluates.
type RuleType string

// Rule types.
const (
	RuleTypeErrorCount        RuleType = "error_count"
	RuleTypeDeploymentFailure RuleType = "deployment_failure"
)

// IsValid reports whether the rule type is known to the evaluator.
func (t RuleType) IsValid() bool {
	return t == RuleTypeErrorCount || t == RuleTypeDeploymentFailure
}

// Severity represents the severity level carried from a rule to the incidents it opens.
type Severity string

// Severity levels.
const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	return s == SeverityMinor || s == SeverityMajor || s == SeverityCritical
}

// Defaults applied to error_count parameters that are absent or zero.
const (
	DefaultErrorWindowMinutes = 5
	DefaultErrorThreshold     = 10
)

var (
	// ErrUnknownRuleType is returned when decoding parameters for an unsupported rule type.
	ErrUnknownRuleType = errors.New("unknown rule type")
	// ErrInvalidRuleParams is returned when rule parameters cannot be decoded or fail validation.
	ErrInvalidRuleParams = errors.New("invalid rule params")
)

var validate = validator.New()

// AlertRule is a per-organization predicate over telemetry.
// A nil ServiceID or EnvironmentID means the rule applies to all of them.
type AlertRule struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	ServiceID       *string         `json:"service_id"`
	EnvironmentID   *string         `json:"environment_id"`
	Name            string          `json:"name"`
	Type            RuleType        `json:"type"`
	Params          json.RawMessage `json:"params"`
	Severity        Severity        `json:"severity"`
	Enabled         bool            `json:"enabled"`
	CooldownSeconds int             `json:"cooldown_seconds"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Cooldown returns the minimum interval between notifications for one fingerprint.
func (r *AlertRule) Cooldown() time.Duration {
	if r.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(r.CooldownSeconds) * time.Second
}

// Scope returns the telemetry scope the rule applies to.
func (r *AlertRule) Scope() TelemetryScope {
	return TelemetryScope{
		OrgID:         r.OrgID,
		ServiceID:     r.ServiceID,
		EnvironmentID: r.EnvironmentID,
	}
}

// DecodeParams decodes the raw params of the rule into the variant matching its type.
func (r *AlertRule) DecodeParams() (RuleParams, error) {
	return DecodeRuleParams(r.Type, r.Params)
}

// RuleParams is implemented by every rule parameter variant.
type RuleParams interface {
	RuleType() RuleType
}

// ErrorCountParams configures the error_count predicate.
type ErrorCountParams struct {
	WindowMinutes int `json:"windowMinutes" validate:"gte=0,lte=10080"`
	Threshold     int `json:"threshold" validate:"gte=0"`
}

// RuleType implements RuleParams.
func (ErrorCountParams) RuleType() RuleType { return RuleTypeErrorCount }

// Window returns the lookback window as a duration.
func (p ErrorCountParams) Window() time.Duration {
	return time.Duration(p.WindowMinutes) * time.Minute
}

func (p *ErrorCountParams) applyDefaults() {
	if p.WindowMinutes == 0 {
		p.WindowMinutes = DefaultErrorWindowMinutes
	}
	if p.Threshold == 0 {
		p.Threshold = DefaultErrorThreshold
	}
}

// DeploymentFailureParams configures the deployment_failure predicate. It has no fields.
type DeploymentFailureParams struct{}

// RuleType implements RuleParams.
func (DeploymentFailureParams) RuleType() RuleType { return RuleTypeDeploymentFailure }

// DecodeRuleParams decodes raw JSON params for the given rule type.
// Empty or null params yield the defaults of the variant.
func DecodeRuleParams(ruleType RuleType, raw json.RawMessage) (RuleParams, error) {
	switch ruleType {
	case RuleTypeErrorCount:
		var p ErrorCountParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		p.applyDefaults()
		return p, nil
	case RuleTypeDeploymentFailure:
		var p DeploymentFailureParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleParams, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleParams, err)
	}
	return nil
}
