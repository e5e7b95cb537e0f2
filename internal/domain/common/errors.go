// Package common holds types shared by every stage of the import pipeline.
package common

import (
	"errors"
	"fmt"
)

// Kind classifies an error at a stage boundary.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindUnavailable  Kind = "unavailable"
	KindRejected     Kind = "rejected"
	KindInternal     Kind = "internal"
)

// Error is the single error type returned across pipeline stage boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error of the given kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and a caller-facing message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound is returned for anything the caller may not see, including
// resources owned by another tenant.
func NotFound(resource string) *Error {
	return E(KindNotFound, resource+" not found")
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err. Internal errors never
// leak their details.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return "an internal error occurred"
		}
		return e.Message
	}
	return "an internal error occurred"
}
