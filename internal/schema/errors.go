package schema

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for absent index state. Callers branch on these rather than
// matching message strings; the service layer maps them to a 404-style result.
var (
	ErrIndexNotFound     = errors.New("index not found")
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// TransportError wraps a network-level failure talking to the embedding or
// completion service. Transport failures are retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SchemaValidationError reports a structured model response that does not
// conform to the Answer shape. It is never retried: the call is a failed
// synthesis, not a failed transport.
type SchemaValidationError struct {
	Field string
	Raw   string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("structured output missing or invalid field %q (raw: %q)", e.Field, e.Raw)
}

// CapacityError reports a batch task that exceeded its wall-clock budget. The
// task is abandoned and counted as failed; the underlying remote call is not
// cancelled.
type CapacityError struct {
	Task    string
	Timeout time.Duration
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("task %q exceeded its %s timeout budget", e.Task, e.Timeout)
}

// IsTransient reports whether err is worth retrying: connection-level
// failures and timeouts, but never schema validation or not-found errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var schemaErr *SchemaValidationError
	if errors.As(err, &schemaErr) {
		return false
	}
	if errors.Is(err, ErrIndexNotFound) || errors.Is(err, ErrNamespaceNotFound) {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
