// Package apperr defines the coded errors shared by the profile pipeline.
package apperr

import (
	"errors"
	"net/http"
)

// Code classifies an Error.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeFetchFailure        Code = "fetch_failure"
	CodeUnrecognizedContent Code = "unrecognized_content"
	CodeNonImageContent     Code = "non_image_content"
	CodeTooLarge            Code = "too_large"
	CodeInvalidURL          Code = "invalid_url"
	CodeStorageFailure      Code = "storage_failure"
	CodeConfiguration       Code = "configuration"
	CodeInvalidArgument     Code = "invalid_argument"
)

// Error carries a code, a short message safe to show to users and the
// underlying cause, which is only ever logged.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrStorageFailure  = &Error{Code: CodeStorageFailure, Message: "storage failure"}
	ErrConfiguration   = &Error{Code: CodeConfiguration, Message: "configuration error"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

func Storage(message string, cause error) *Error {
	return Wrap(CodeStorageFailure, message, cause)
}

func Configuration(message string, cause error) *Error {
	return Wrap(CodeConfiguration, message, cause)
}

func InvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a short human-readable message for err. Unclassified
// errors get a generic message so internal detail never leaks.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Oops! Something went wrong."
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeStorageFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
