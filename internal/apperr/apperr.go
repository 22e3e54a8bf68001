package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the backend. Handlers and the orchestrator
// dispatch on these with errors.Is / errors.As.
var (
	// ErrBusy is returned when a single-flight operation is already running.
	ErrBusy = errors.New("a task is already running")

	// ErrNotFound signals a missing catalog entity.
	ErrNotFound = errors.New("not found")
)

// UnknownCategoryError is returned for scans against a category that is not
// in the configured set.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category: %s", e.Category)
}

// QuotaError signals a rate-limit / throttle response from an external API.
// The fetch layer handles it with a fixed backoff and a single retry.
type QuotaError struct {
	StatusCode int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (status %d)", e.StatusCode)
}

// TransientError wraps a network-level failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError signals that a generation collaborator returned
// output that does not satisfy its JSON contract. Callers fall back to a
// deterministic default rather than aborting.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed generation response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ConfigError signals a missing or invalid configuration value. Fatal at
// startup only.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Key)
}

func IsQuota(err error) bool {
	var q *QuotaError
	return errors.As(err, &q)
}
