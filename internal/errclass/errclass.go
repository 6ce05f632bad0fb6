// Package errclass maps a raised API error to a retry-relevant
// classification: a kind, a display priority, and whether the operation
// should be retried. It also tracks per-path consecutive failures so a
// single broken file cannot dominate worker attention over a long session.
package errclass

import (
	"errors"
	"net/http"

	"github.com/hyperclay/sitesync/internal/api"
)

// Kind categorizes the nature of a failure.
type Kind string

// Recognized error kinds.
const (
	KindAuth         Kind = "AUTH"
	KindNetwork      Kind = "NETWORK"
	KindRateLimit    Kind = "RATE_LIMIT"
	KindNameConflict Kind = "NAME_CONFLICT"
	KindValidation   Kind = "VALIDATION"
	KindNotFound     Kind = "NOT_FOUND"
	KindServer       Kind = "SERVER"
	KindFileAccess   Kind = "FILE_ACCESS"
	KindUnknown      Kind = "UNKNOWN"
)

// Priority ranks how urgently a classified failure should surface to the UI.
type Priority string

// Recognized priorities.
const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Classification is the result of classifying an error.
type Classification struct {
	Kind      Kind
	Priority  Priority
	Retryable bool
}

// retryableKinds mirrors the data model's fixed mapping.
var retryableKinds = map[Kind]bool{
	KindNetwork:   true,
	KindRateLimit: true,
	KindServer:    true,
}

// priorityByKind gives each kind a default display priority.
var priorityByKind = map[Kind]Priority{
	KindAuth:         PriorityCritical,
	KindNetwork:      PriorityMedium,
	KindRateLimit:    PriorityLow,
	KindNameConflict: PriorityHigh,
	KindValidation:   PriorityHigh,
	KindNotFound:     PriorityMedium,
	KindServer:       PriorityMedium,
	KindFileAccess:   PriorityHigh,
	KindUnknown:      PriorityMedium,
}

// Classify inspects err (typically an *api.Error, possibly wrapping a
// network-level error) and returns its Classification.
func Classify(err error) Classification {
	kind := classifyKind(err)

	return Classification{
		Kind:      kind,
		Priority:  priorityByKind[kind],
		Retryable: retryableKinds[kind],
	}
}

func classifyKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Details)
	}

	var fileErr *FileAccessError
	if errors.As(err, &fileErr) {
		return KindFileAccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}

	// Anything else reaching here (connection refused, DNS failure, timeout
	// without a response) is treated as a transient network condition.
	return KindNetwork
}

func classifyStatus(code int, details map[string]any) Kind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusConflict:
		if details != nil {
			if _, ok := details["suggestions"]; ok {
				return KindNameConflict
			}
		}

		return KindNameConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	default:
		if code >= http.StatusInternalServerError {
			return KindServer
		}

		return KindUnknown
	}
}

// FileAccessError wraps a local filesystem failure (permission denied,
// disk full) encountered while reading or writing a synced file.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return "file access error for " + e.Path + ": " + e.Err.Error()
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// ValidationError wraps a local name/path validation failure.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return "validation error for " + e.Path + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
