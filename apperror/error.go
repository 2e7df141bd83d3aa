package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// KindConfig is a setup problem. Retrying will not help.
	KindConfig Kind = iota + 1
	// KindTransient is an I/O failure; the next trigger may succeed.
	KindTransient
	// KindInvalid is bad caller input.
	KindInvalid
	// KindBackend means the watch backend could not be used.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindInvalid:
		return "invalid"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// AppError represents a custom application error.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind onto an HTTP status for the web API.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindConfig:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Config creates a configuration error.
func Config(message string) *AppError {
	return New(KindConfig, message, nil)
}

// Transient creates an error for a recoverable I/O failure.
func Transient(message string, err error) *AppError {
	return New(KindTransient, message, err)
}

// Invalid creates an invalid input error.
func Invalid(message string) *AppError {
	return New(KindInvalid, message, nil)
}

// Backend creates a watch backend error.
func Backend(message string, err error) *AppError {
	return New(KindBackend, message, err)
}

// KindOf returns the kind of err, or 0 if err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}
