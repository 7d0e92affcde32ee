package models

import (
	"errors"
	"fmt"
)

// FailureKind classifies fetch failures for retry handling.
type FailureKind string

const (
	// FailureTransient covers network errors and 5xx responses; retried.
	FailureTransient FailureKind = "TRANSIENT"
	// FailureNotFound means the symbol does not exist at the source; never retried.
	FailureNotFound FailureKind = "NOT_FOUND"
	// FailureRateLimited means the source throttled us; retried after backoff.
	FailureRateLimited FailureKind = "RATE_LIMITED"
)

// FetchFailure is the typed error for market-data and news fetches.
type FetchFailure struct {
	Kind       FailureKind
	Source     string
	Symbol     string
	StatusCode int
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s fetch for %s failed (%s): %v", f.Source, f.Symbol, f.Kind, f.Err)
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s fetch for %s failed (%s): status %d", f.Source, f.Symbol, f.Kind, f.StatusCode)
	}
	return fmt.Sprintf("%s fetch for %s failed (%s)", f.Source, f.Symbol, f.Kind)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the failure class is worth retrying.
func (f *FetchFailure) Retryable() bool {
	return f.Kind == FailureTransient || f.Kind == FailureRateLimited
}

// AsFetchFailure extracts a FetchFailure from an error chain.
func AsFetchFailure(err error) (*FetchFailure, bool) {
	var f *FetchFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsNotFound reports whether err is a NOT_FOUND fetch failure.
func IsNotFound(err error) bool {
	f, ok := AsFetchFailure(err)
	return ok && f.Kind == FailureNotFound
}

// IsRateLimited reports whether err is a RATE_LIMITED fetch failure.
func IsRateLimited(err error) bool {
	f, ok := AsFetchFailure(err)
	return ok && f.Kind == FailureRateLimited
}

// IsTransient reports whether err is a TRANSIENT fetch failure.
func IsTransient(err error) bool {
	f, ok := AsFetchFailure(err)
	return ok && f.Kind == FailureTransient
}

// APIError represents a non-taxonomy error response from an upstream API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// ValidationError is a row-level rejection from the portfolio CSV store.
// It never aborts a load; callers collect and continue.
type ValidationError struct {
	Line    int
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}
