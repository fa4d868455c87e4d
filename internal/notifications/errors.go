package notifications

import "errors"

var (
	ErrMissingWebhookURL = errors.New("webhook URL is missing")
	ErrNoSender          = errors.New("no sender for channel type")
	ErrInvalidJobStatus  = errors.New("invalid job status")
)

// DeliveryError attaches a retry decision to a delivery failure.
type DeliveryError struct {
	Err       error
	retryable bool
}

func NewRetryableError(err error) *DeliveryError {
	return &DeliveryError{Err: err, retryable: true}
}

// NewNonRetryableError marks a failure another attempt cannot fix, such as a missing webhook URL.
func NewNonRetryableError(err error) *DeliveryError {
	return &DeliveryError{Err: err}
}

func (e *DeliveryError) Error() string {
	return e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) IsRetryable() bool {
	return e.retryable
}

// IsRetryable reports whether another attempt may succeed. Errors without
// an IsRetryable method, such as network errors, count as retryable.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
