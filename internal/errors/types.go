package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies failures surfaced by the token launch pipeline.
type Kind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown Kind = iota
	// KindValidation - command text is malformed or incomplete
	KindValidation
	// KindTaskCreation - the solving service did not hand back a task handle
	KindTaskCreation
	// KindTaskProcessing - the solving service reported a terminal failure
	KindTaskProcessing
	// KindTaskTimeout - polling budget exhausted or cancelled
	KindTaskTimeout
	// KindNetwork - transport-level failure on any HTTP call
	KindNetwork
	// KindHTTP - unexpected status from the action service
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTaskCreation:
		return "task_creation"
	case KindTaskProcessing:
		return "task_processing"
	case KindTaskTimeout:
		return "task_timeout"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// ValidationError reports the labeled fields that could not be located.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "invalid command"
	}
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Missing, ", "))
}

// TaskCreationError means the solving service response carried no usable task id.
type TaskCreationError struct {
	Reason string
	Body   string // raw response body, if any
}

func (e *TaskCreationError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("failed to create task: %s (response: %s)", e.Reason, e.Body)
	}
	return fmt.Sprintf("failed to create task: %s", e.Reason)
}

// TaskProcessingError is a terminal failure status reported for a task.
type TaskProcessingError struct {
	TaskID string
	Reason string
}

func (e *TaskProcessingError) Error() string {
	return fmt.Sprintf("error solving task %s: %s", e.TaskID, e.Reason)
}

// TaskTimeoutError means the task never reached a terminal state within the poll budget.
type TaskTimeoutError struct {
	TaskID    string
	Attempts  int
	Cancelled bool
	Err       error // context error when Cancelled
}

func (e *TaskTimeoutError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("polling task %s cancelled after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("task %s not ready after %d attempts", e.TaskID, e.Attempts)
}

func (e *TaskTimeoutError) Unwrap() error {
	return e.Err
}

// NetworkError wraps a transport failure on an outbound call.
type NetworkError struct {
	Op  string // e.g. "create task", "get task result", "create coin"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-success response from the action service.
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.Code, e.Body)
}

// NewNetworkError wraps err unless it is already classified.
func NewNetworkError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}

// KindOf classifies err by walking its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}
	var creationErr *TaskCreationError
	if errors.As(err, &creationErr) {
		return KindTaskCreation
	}
	var processingErr *TaskProcessingError
	if errors.As(err, &processingErr) {
		return KindTaskProcessing
	}
	var timeoutErr *TaskTimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTaskTimeout
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return KindHTTP
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return KindNetwork
	}
	var openErr *CircuitOpenError
	if errors.As(err, &openErr) {
		return KindNetwork
	}
	return KindUnknown
}

// IsNetwork reports whether err looks like a connectivity failure.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return true
	}
	return isNetworkError(err) || isSyscallError(err)
}

// Describe converts err into a short human readable reason.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var openErr *CircuitOpenError
	if errors.As(err, &openErr) {
		return openErr.Message()
	}

	var timeoutErr *TaskTimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out before the service answered."
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled."
	}

	lowerErr := strings.ToLower(err.Error())
	if strings.Contains(lowerErr, "connection refused") {
		return fmt.Sprintf("Service is not reachable (connection refused): %v", err)
	}
	if strings.Contains(lowerErr, "no such host") {
		return fmt.Sprintf("Service host could not be resolved: %v", err)
	}

	return err.Error()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}
