package incidents

import "errors"

// Domain errors.
var (
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrInvalidStatus      = errors.New("invalid incident status")
	ErrStatusUnchanged    = errors.New("incident already has this status")
	ErrStatusConflict     = errors.New("incident status was changed concurrently")
	ErrOpenIncidentExists = errors.New("an active incident already exists for this alert")
)
