// Package errs defines the error taxonomy shared by the speech pipeline.
//
// Component packages wrap these types with their own sentinels, so callers
// can test the high-level outcome with errors.Is and still reach the cause
// with errors.As.
package errs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is returned for empty or whitespace-only text.
var ErrInvalidInput = errors.New("text is empty")

// LaunchError reports an external program that could not be started.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TimeoutError reports an external program killed after exceeding its bound.
type TimeoutError struct {
	Program string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not finish within %s", e.Program, e.After)
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Program string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Program, e.Code, e.Stderr)
}

// MalformedOutputError reports output that could not be decoded.
type MalformedOutputError struct {
	Detail string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	if e.Err == nil {
		return "malformed output: " + e.Detail
	}
	return fmt.Sprintf("malformed output: %s: %v", e.Detail, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// ResourceMissingError reports a required file that does not exist.
type ResourceMissingError struct {
	Path string
}

func (e *ResourceMissingError) Error() string {
	return "missing resource: " + e.Path
}

// Kind names the category of err for logs and metric labels.
func Kind(err error) string {
	var (
		launch   *LaunchError
		timeout  *TimeoutError
		exit     *ExitError
		malform  *MalformedOutputError
		resource *ResourceMissingError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &exit):
		return "exit"
	case errors.As(err, &launch):
		return "launch"
	case errors.As(err, &malform):
		return "malformed_output"
	case errors.As(err, &resource):
		return "resource_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
