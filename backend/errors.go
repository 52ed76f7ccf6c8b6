// ABOUTME: Typed failure taxonomy for backend calls
// ABOUTME: Maps HTTP status codes to validation, auth, network, not-found, and conflict errors

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidationRejected = errors.New("validation rejected")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindValidationRejected ErrorKind = "validation_rejected"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidationRejected:
		return ErrValidationRejected
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	default:
		return ErrNetworkUnavailable
	}
}

// Error is returned for every failed backend call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Fields holds field-level messages for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the taxonomy bucket of err. Errors that did not come from
// the backend are treated as network failures.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, ErrValidationRejected):
		return KindValidationRejected
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindNetworkUnavailable
}

// FieldErrors returns the field-level messages of a validation failure.
func FieldErrors(err error) map[string]string {
	var be *Error
	if errors.As(err, &be) && be.Kind == KindValidationRejected {
		return be.Fields
	}
	return nil
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound, status == http.StatusGone:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindNetworkUnavailable
	default:
		return KindValidationRejected
	}
}
