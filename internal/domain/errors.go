// Package domain contains the vehicle model, change events and the
// error taxonomy shared by the API and the worker.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of error categories that may cross the
// service boundary. The HTTP layer maps kinds to status codes; kinds
// are stable across versions.
type ErrorKind string

const (
	// KindConflict indicates a uniqueness conflict (placa, chassi, renavam).
	KindConflict ErrorKind = "CONFLICT"

	// KindNotFound indicates the requested vehicle does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindInvalidInput indicates the caller supplied data the validator
	// or the store rejected.
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindIntegrityViolation indicates a referential integrity failure.
	KindIntegrityViolation ErrorKind = "INTEGRITY_VIOLATION"

	// KindSchemaMissing indicates a missing table or column. This is a
	// server-side defect (migrations not applied), never a client error.
	KindSchemaMissing ErrorKind = "SCHEMA_MISSING"

	// KindUnknownStoreError indicates a storage failure code the
	// translator does not recognize. The raw code travels in Details.
	KindUnknownStoreError ErrorKind = "UNKNOWN_STORE_ERROR"

	// KindInternal indicates an unexpected non-storage failure.
	KindInternal ErrorKind = "INTERNAL"
)

// Error is the only error shape that leaves the repository or service
// layer. It is constructed once at the storage boundary and never
// mutated afterwards.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a domain error without details.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorWithDetails builds a domain error carrying structured details.
func NewErrorWithDetails(kind ErrorKind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// NotFound builds a NOT_FOUND error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// InvalidInput builds an INVALID_INPUT error.
func InvalidInput(message string, details map[string]any) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Details: details}
}

// KindOf extracts the error kind from any error. Errors that are not
// domain errors report KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsDomainError unwraps err into a *Error, or wraps it as INTERNAL so
// callers always have a typed error to hand to the transport layer.
func AsDomainError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: KindInternal, Message: "internal error"}
}
