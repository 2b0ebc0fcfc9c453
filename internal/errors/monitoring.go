package errors

import (
	"errors"
	"fmt"
)

// Fetch failure kinds.
const (
	FetchTimeout     = "timeout"
	FetchHTTPError   = "http_error"
	FetchUnreachable = "unreachable"
)

// FetchError reports a failed content fetch. A fetch failure never aborts a
// monitoring cycle; the document is rescheduled and the job error counter
// bumped.
type FetchError struct {
	URL        string
	Kind       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed (%s, status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(url, kind string, statusCode int, err error) *FetchError {
	return &FetchError{URL: url, Kind: kind, StatusCode: statusCode, Err: err}
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// AnalysisError reports content that could not be compared (empty or
// malformed snapshots).
type AnalysisError struct {
	Reason string
}

func (e *AnalysisError) Error() string {
	return "analysis failed: " + e.Reason
}

// NewAnalysisError builds an AnalysisError.
func NewAnalysisError(reason string) *AnalysisError {
	return &AnalysisError{Reason: reason}
}

// IsAnalysisError reports whether err is (or wraps) an AnalysisError.
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}

// DispatchError reports a notification sink rejecting an enqueue. It is
// logged and never retried by this service.
type DispatchError struct {
	ChangeID string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch for change %s failed: %v", e.ChangeID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// NewDispatchError builds a DispatchError.
func NewDispatchError(changeID string, err error) *DispatchError {
	return &DispatchError{ChangeID: changeID, Err: err}
}
