package galaxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Operation names used in *Error.
const (
	OpBuild         = "build"
	OpShowTool      = "show tool"
	OpToolSource    = "tool source"
	OpSubmit        = "submit"
	OpJobState      = "job state"
	OpListArtifacts = "list artifacts"
	OpDatasetState  = "dataset state"
	OpProvenance    = "provenance"
	OpHistories     = "histories"
	OpVersion       = "version"
)

var (
	// ErrBuildFailure marks an internal server error from the build endpoint.
	// The service raises it for some partial inputs and not others.
	ErrBuildFailure = errors.New("tool build failed")

	// ErrNoJob is returned when a submission response names no job.
	ErrNoJob = errors.New("submission returned no job")
)

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true for gateway failures and throttling.
func (e *HTTPError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Error wraps a failed API call with the operation that issued it.
type Error struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("galaxy %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsTransport reports whether err is a connectivity failure that callers
// should recover from by waiting and retrying: refused or reset connections,
// timeouts, truncated responses, gateway errors and throttling. Context
// cancellation is never a transport failure.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// IsRecoverable reports whether a failed call inside a wait loop should be
// retried after a backoff. Connectivity failures and every failure response
// qualify except authentication errors, 404 and the build endpoint's
// internal error.
func IsRecoverable(err error) bool {
	if IsTransport(err) {
		return true
	}
	if err == nil || IsBuildFailure(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	return httpErr.StatusCode >= http.StatusBadRequest
}

// IsBuildFailure reports whether err is the build endpoint's internal error.
func IsBuildFailure(err error) bool {
	return errors.Is(err, ErrBuildFailure)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
