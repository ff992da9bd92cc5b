package personaquiz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError means the client cannot be built, usually because no API
// key was supplied. Generation bypasses the network when it is present.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransportError covers network failures and non-2xx responses.
// StatusCode is 0 when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the provider rejected the credential, either by
// status or by an invalid-key message on another status
func (e *TransportError) IsAuth() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "invalid_api_key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "invalid api key")
}

// TimeoutError is returned when a single attempt exceeds its deadline
type TimeoutError struct {
	After string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call timed out after %s", e.After)
}

// MalformedResponse means the provider answered but the body was empty, not
// JSON, or did not match the requested shape
type MalformedResponse struct {
	Shape  Shape
	Reason string
	Body   string
	Err    error
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Shape, e.Reason)
}

func (e *MalformedResponse) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is an authentication rejection.
// Retrying these is pointless.
func IsAuthFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsAuth()
}

// IsConfigurationError reports whether err stems from missing configuration
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// errorKind is a short label used in logs and metrics
func errorKind(err error) string {
	var (
		ce *ConfigurationError
		te *TransportError
		to *TimeoutError
		mr *MalformedResponse
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &te):
		if te.IsAuth() {
			return "auth"
		}
		return "transport"
	case errors.As(err, &to):
		return "timeout"
	case errors.As(err, &mr):
		return "malformed"
	default:
		return "other"
	}
}
