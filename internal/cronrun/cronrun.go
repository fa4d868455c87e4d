// Package cronrun records a summary of every cron job invocation.
package cronrun

import (
	"context"
	"encoding/json"
	"time"
)

// Job names stored with run records.
const (
	JobEvaluateAlerts       = "evaluate-alerts"
	JobProcessNotifications = "process-notifications"
)

// Run is one persisted cron invocation.
type Run struct {
	ID        string          `json:"id"`
	Job       string          `json:"job"`
	Summary   json.RawMessage `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder persists run summaries. Summary must be JSON-serializable.
type Recorder interface {
	Record(ctx context.Context, job string, summary any) error
}

// Nop discards run records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, string, any) error { return nil }
