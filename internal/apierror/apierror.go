// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package apierror implements the engine's error taxonomy: a closed
// set of error kinds, each with a single, well-known HTTP status.
// Domain packages never write to an http.ResponseWriter directly;
// they return an *Error (or a wrapped one) and the Coordinator's HTTP
// layer is the only place that translates Kind into a status code.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy from the service's error handling design.
type Kind string

const (
	ValidationFailed Kind = "ValidationFailed"
	BadMode          Kind = "BadMode"
	NotFound         Kind = "NotFound"
	InvalidWorkload  Kind = "InvalidWorkload"
	PodNotReady      Kind = "PodNotReady"
	UnsupportedKind  Kind = "UnsupportedKind"
	APIError         Kind = "APIError"
	StopFailed       Kind = "StopFailed"
)

// Error is the engine's single error type. It wraps an underlying
// cause so errors.Is/errors.As continue to work against it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// StatusCode maps an error Kind to the HTTP status the Lifecycle
// Coordinator's HTTP layer must respond with.
func (k Kind) StatusCode() int {
	switch k {
	case ValidationFailed, BadMode, PodNotReady, UnsupportedKind:
		return http.StatusBadRequest
	case NotFound, InvalidWorkload:
		return http.StatusNotFound
	case APIError, StopFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or
// APIError if err does not wrap an *Error — every error that escapes
// a Kubernetes API call without having been classified is treated as
// an opaque API failure, never silently swallowed.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return APIError
}
