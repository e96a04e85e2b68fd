package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by chat replies, logs and the HTTP API.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
	CodeCorrelationMiss     = "CORRELATION_MISS"
	CodeAuthorizationDenied = "AUTHORIZATION_DENIED"
	CodeStoreFailure        = "STORE_FAILURE"
	CodeTransportFailure    = "TRANSPORT_FAILURE"
	CodeMalformedCommand    = "MALFORMED_COMMAND"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewCorrelationMiss marks a reply that matches no tracked incidence.
func NewCorrelationMiss(reason string) error {
	return NewDomainError(CodeCorrelationMiss, reason, http.StatusNotFound, nil)
}

// NewAuthorizationDenied is surfaced to the actor in chat, not logged as an error.
func NewAuthorizationDenied(message string) error {
	return NewDomainError(CodeAuthorizationDenied, message, http.StatusForbidden, nil)
}

// NewStoreFailure wraps a persistence error.
func NewStoreFailure(op string, err error) error {
	return &DomainError{
		Code:       CodeStoreFailure,
		Message:    op,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewTransportFailure wraps an outbound delivery error.
func NewTransportFailure(conversationID string, err error) error {
	return &DomainError{
		Code:       CodeTransportFailure,
		Message:    "deliver message",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"conversation_id": conversationID},
		Err:        err,
	}
}

// NewMalformedCommand carries the usage line shown to the actor.
func NewMalformedCommand(usage string) error {
	return NewDomainError(CodeMalformedCommand, usage, http.StatusBadRequest, nil)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError normalizes err into a DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given DomainError code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
