// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the non-protocol error kinds raised by the engine.
//
// Protocol outcomes (invalid_grant, consent_required, ...) are reported as
// fosite RFC 6749 errors. The kinds in this package describe conditions the
// protocol cannot express, such as a misconfigured deployment or an
// unreachable grant store. Callers surface them as server errors and never
// translate them into protocol error codes.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrConfiguration is returned when the deployment configuration cannot
	// support the requested operation (missing signing key, unsupported
	// claim value type, deleted client).
	ErrConfiguration = "configuration"

	// ErrStorage is returned when a persisted grant backend fails
	ErrStorage = "storage"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsInvalidArgument checks if the error chain contains an invalid argument error
func IsInvalidArgument(err error) bool {
	return hasType(err, ErrInvalidArgument)
}

// IsConfiguration checks if the error chain contains a configuration error
func IsConfiguration(err error) bool {
	return hasType(err, ErrConfiguration)
}

// IsStorage checks if the error chain contains a storage error
func IsStorage(err error) bool {
	return hasType(err, ErrStorage)
}

// IsInternal checks if the error chain contains an internal error
func IsInternal(err error) bool {
	return hasType(err, ErrInternal)
}

// IsFatal reports whether err is one of the kinds in this package. Fatal
// errors abort the request and are never reported as protocol errors.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func hasType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}
