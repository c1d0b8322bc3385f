// Package errors provides error handling for Meridian.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrUnknownEntity) {
//	    // handle missing entity
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Signal Bus boundary errors. These are the only errors a collaborator
// needs to distinguish; everything else is either rejected bad input or
// self-healing on the next cycle. Check with errors.Is(), wrap with
// errors.Wrap() to add context while preserving the type.
var (
	// ErrInvalidConfidence indicates a confidence value outside [0,1]
	ErrInvalidConfidence = New("confidence out of range")

	// ErrUnknownEntity indicates the entity_id does not resolve.
	// During propagation this means the target was deleted mid-cascade;
	// the cascade skips it rather than failing.
	ErrUnknownEntity = New("unknown entity")

	// ErrCycleDetected indicates a propagation cascade revisited an entity.
	// The hierarchy is acyclic by construction, so this is defensive: the
	// offending branch is aborted, sibling branches continue.
	ErrCycleDetected = New("propagation cycle detected")

	// ErrSynthesisUnavailable indicates the external intelligence-synthesis
	// collaborator is unreachable. The enrichment cursor is left untouched
	// so the next scheduler tick retries.
	ErrSynthesisUnavailable = New("synthesis collaborator unavailable")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsInvalidConfidence checks if an error is or wraps ErrInvalidConfidence
func IsInvalidConfidence(err error) bool {
	return err != nil && Is(err, ErrInvalidConfidence)
}

// IsUnknownEntity checks if an error is or wraps ErrUnknownEntity
func IsUnknownEntity(err error) bool {
	return err != nil && Is(err, ErrUnknownEntity)
}

// IsCycleDetected checks if an error is or wraps ErrCycleDetected
func IsCycleDetected(err error) bool {
	return err != nil && Is(err, ErrCycleDetected)
}

// IsSynthesisUnavailable checks if an error is or wraps ErrSynthesisUnavailable
func IsSynthesisUnavailable(err error) bool {
	return err != nil && Is(err, ErrSynthesisUnavailable)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
