// Package errors provides error wrapping utilities and the typed error
// kinds the core distinguishes (NotFound, ValidationFailed,
// UniquenessViolation). Transient vs fatal I/O is not a distinct Go type:
// callers classify it from the underlying error (context deadline, network
// error, HTTP status) at the point they need to decide on a retry.
package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// NotFoundError indicates a row or resource that was expected to exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NotFound builds a NotFoundError.
func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ValidationError indicates rejected adapter params, config, or form data.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err (or anything it wraps) is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// UniquenessError indicates a store-detected uniqueness violation,
// translated into a domain-specific message by the caller.
type UniquenessError struct {
	Resource string
	Field    string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("a %s with this %s already exists", e.Resource, e.Field)
}

// Uniqueness builds a UniquenessError.
func Uniqueness(resource, field string) error {
	return &UniquenessError{Resource: resource, Field: field}
}

// IsUniqueness reports whether err (or anything it wraps) is a UniquenessError.
func IsUniqueness(err error) bool {
	var target *UniquenessError
	return errors.As(err, &target)
}
