package domain

import "time"

// TelemetryScope narrows telemetry queries. Nil service or environment matches every value.
type TelemetryScope struct {
	OrgID         string
	ServiceID     *string
	EnvironmentID *string
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "pending"
	DeploymentStatusRunning   DeploymentStatus = "running"
	DeploymentStatusSuccess   DeploymentStatus = "success"
	DeploymentStatusFailure   DeploymentStatus = "failure"
	DeploymentStatusTimedOut  DeploymentStatus = "timed_out"
	DeploymentStatusCancelled DeploymentStatus = "cancelled"
)

// IsFailed reports whether the deployment ended in one of the failing terminal statuses.
func (s DeploymentStatus) IsFailed() bool {
	return s == DeploymentStatusFailure || s == DeploymentStatusTimedOut || s == DeploymentStatusCancelled
}

type Deployment struct {
	ID            string           `json:"id"`
	OrgID         string           `json:"org_id"`
	ServiceID     *string          `json:"service_id"`
	EnvironmentID *string          `json:"environment_id"`
	Status        DeploymentStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AlertFiring is the dedupe and cooldown record keyed by rule and fingerprint.
type AlertFiring struct {
	RuleID         string
	Fingerprint    string
	FiredAt        time.Time
	LastNotifiedAt *time.Time
}
